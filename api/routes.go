package api

// HTTP and websocket endpoints served by the faucet API.
const (
	// PingEndpoint is the healthcheck endpoint.
	PingEndpoint = "/ping"
	// ClaimRewardEndpoint submits a claim for a claimable session.
	// POST /api/claimReward
	ClaimRewardEndpoint = "/api/claimReward"
	// SessionStatusEndpoint returns the claim status of a session.
	// GET /api/getSessionStatus?session=<id>
	SessionStatusEndpoint = "/api/getSessionStatus"
	// QueueStatusEndpoint returns the aggregated queue snapshot.
	// GET /api/getQueueStatus
	QueueStatusEndpoint = "/api/getQueueStatus"
	// ClaimWsEndpoint attaches a websocket subscriber for queue progress.
	// GET /ws/claim?session=<id>
	ClaimWsEndpoint = "/ws/claim"
)

// SessionURLParam is the query parameter carrying the session id.
const SessionURLParam = "session"
