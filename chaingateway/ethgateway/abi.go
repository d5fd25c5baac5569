package ethgateway

// exchangeABI is the subset of the exchange contract's interface this
// gateway needs: the nine batch/order lifecycle events, each carrying
// exactly the fields the driver decodes, plus the three read/write
// methods it calls (currentBatchId, getSecondsRemainingInBatch,
// submitSolution; SubmitNoop also sends submitSolution). The gateway
// always uses this literal: it does not load a compiled artifact from
// Config.ABIPath, and it can be exercised against a local test chain
// without one.
const exchangeABI = `[
  {"type":"function","name":"currentBatchId","inputs":[],"outputs":[{"type":"uint32"}],"stateMutability":"view"},
  {"type":"function","name":"getSecondsRemainingInBatch","inputs":[],"outputs":[{"type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"submitSolution","inputs":[
    {"name":"batchIndex","type":"uint32"},
    {"name":"claimedObjective","type":"uint256"},
    {"name":"owners","type":"address[]"},
    {"name":"orderIds","type":"uint16[]"},
    {"name":"volumes","type":"uint128[]"},
    {"name":"prices","type":"uint128[]"},
    {"name":"tokenIdsForPrice","type":"uint16[]"}
  ],"outputs":[{"type":"uint256"}],"stateMutability":"nonpayable"},
  {"type":"event","name":"TokenListing","anonymous":false,"inputs":[
    {"name":"id","type":"uint16","indexed":false},
    {"name":"token","type":"address","indexed":false}
  ]},
  {"type":"event","name":"Deposit","anonymous":false,"inputs":[
    {"name":"user","type":"address","indexed":true},
    {"name":"token","type":"uint16","indexed":false},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"creditBatch","type":"uint32","indexed":false}
  ]},
  {"type":"event","name":"WithdrawRequest","anonymous":false,"inputs":[
    {"name":"user","type":"address","indexed":true},
    {"name":"token","type":"uint16","indexed":false},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"earliestBatch","type":"uint32","indexed":false}
  ]},
  {"type":"event","name":"Withdraw","anonymous":false,"inputs":[
    {"name":"user","type":"address","indexed":true},
    {"name":"token","type":"uint16","indexed":false},
    {"name":"amount","type":"uint256","indexed":false}
  ]},
  {"type":"event","name":"OrderPlacement","anonymous":false,"inputs":[
    {"name":"user","type":"address","indexed":true},
    {"name":"orderId","type":"uint16","indexed":false},
    {"name":"buyToken","type":"uint16","indexed":false},
    {"name":"sellToken","type":"uint16","indexed":false},
    {"name":"validFrom","type":"uint32","indexed":false},
    {"name":"validUntil","type":"uint32","indexed":false},
    {"name":"numerator","type":"uint128","indexed":false},
    {"name":"denominator","type":"uint128","indexed":false}
  ]},
  {"type":"event","name":"OrderCancellation","anonymous":false,"inputs":[
    {"name":"user","type":"address","indexed":true},
    {"name":"orderId","type":"uint16","indexed":false}
  ]},
  {"type":"event","name":"Trade","anonymous":false,"inputs":[
    {"name":"user","type":"address","indexed":true},
    {"name":"orderId","type":"uint16","indexed":false},
    {"name":"sellToken","type":"uint16","indexed":false},
    {"name":"buyToken","type":"uint16","indexed":false},
    {"name":"executedSellAmount","type":"uint128","indexed":false},
    {"name":"executedBuyAmount","type":"uint128","indexed":false}
  ]},
  {"type":"event","name":"TradeReversion","anonymous":false,"inputs":[
    {"name":"user","type":"address","indexed":true},
    {"name":"orderId","type":"uint16","indexed":false},
    {"name":"sellToken","type":"uint16","indexed":false},
    {"name":"buyToken","type":"uint16","indexed":false},
    {"name":"executedSellAmount","type":"uint128","indexed":false},
    {"name":"executedBuyAmount","type":"uint128","indexed":false}
  ]},
  {"type":"event","name":"SolutionSubmission","anonymous":false,"inputs":[
    {"name":"submitter","type":"address","indexed":true},
    {"name":"utility","type":"uint256","indexed":false},
    {"name":"fee","type":"uint256","indexed":false},
    {"name":"batchId","type":"uint32","indexed":false}
  ]}
]`
