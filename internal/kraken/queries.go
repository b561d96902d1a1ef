package kraken

// GraphQL documents sent to the Kraken API. The comprehensive query pulls
// everything one refresh cycle needs in a single round trip: balances, the
// most recent bill (any variant), the active tariff and the half-hourly
// readings for the requested window.

const obtainTokenMutation = `
mutation obtainKrakenToken($input: ObtainJSONWebTokenInput!) {
  obtainKrakenToken(input: $input) {
    refreshToken
    refreshExpiresIn
    payload
    token
  }
}
`

const accountViewerQuery = `
query accountViewer {
  viewer {
    accounts {
      number
    }
  }
}
`

const comprehensiveAccountQuery = `
query ComprehensiveAccountQuery($accountNumber: String!, $startTime: DateTime!, $endTime: DateTime!) {
  account(accountNumber: $accountNumber) {
    number
    balance
    overdueBalance

    bills(first: 1, orderBy: FROM_DATE_DESC) {
      edges {
        node {
          id
          __typename

          ... on PeriodBasedDocumentType {
            issuedDate
            totalCharges {
              grossTotal
            }
          }
          ... on InvoiceType {
            issuedDate
            toDate
            grossAmount
          }
          ... on StatementType {
            issuedDate
            paymentDueDate
            totalCharges {
              grossTotal
            }
          }
        }
      }
    }

    properties {
      electricitySupplyPoints {
        agreements(onlyActive: true) {
          product {
            ... on ProductInterface {
              displayName
              standingCharges {
                pricePerUnit
              }
              fuelCostAdjustment {
                pricePerUnit
              }
            }
            ... on ElectricitySingleStepProduct {
              consumptionCharges {
                pricePerUnit
              }
            }
            ... on ElectricitySteppedProduct {
              consumptionCharges {
                pricePerUnit
                stepStart
                stepEnd
              }
            }
          }
        }
        halfHourlyReadings(fromDatetime: $startTime, toDatetime: $endTime) {
          startAt
          endAt
          value
        }
      }
    }
  }
}
`
