package api

import (
	"github.com/cw-faucet/faucetd/status"
	"github.com/cw-faucet/faucetd/types"
)

// ClaimRequest is the body of the claimReward endpoint. Address and Amount
// override the session's committed values when present; they are validated
// by the pipeline.
type ClaimRequest struct {
	Session string `json:"session"`
	Address string `json:"address,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

// SessionStatusResponse is the client session status object returned by the
// claimReward and getSessionStatus endpoints.
type SessionStatusResponse struct {
	Session      string `json:"session"`
	Status       string `json:"status"`
	TargetAddr   string `json:"targetAddr,omitempty"`
	DropAmount   string `json:"dropAmount,omitempty"`
	ClaimIdx     int64  `json:"claimIdx,omitempty"`
	ClaimStatus  string `json:"claimStatus,omitempty"`
	ClaimMessage string `json:"claimMessage,omitempty"`
	TxHash       string `json:"txHash,omitempty"`
	TxHeight     int64  `json:"txHeight,omitempty"`
	TxFee        string `json:"txFee,omitempty"`
}

// QueueStatusResponse is the aggregated queue snapshot returned by the
// getQueueStatus endpoint.
type QueueStatusResponse struct {
	QueueLength    int                     `json:"queueLength"`
	PendingCount   int                     `json:"pendingCount"`
	ProcessedIdx   int64                   `json:"processedIdx"`
	ConfirmedIdx   int64                   `json:"confirmedIdx"`
	QueuedAmount   *types.BigInt           `json:"queuedAmount"`
	ClaimCount     int64                   `json:"claimCount"`
	TotalDispensed *types.BigInt           `json:"totalDispensed"`
	FaucetStatus   map[string]status.Entry `json:"faucetStatus"`
}

// sessionStatusResponse builds the client status object from a session.
func sessionStatusResponse(sess *types.Session) *SessionStatusResponse {
	resp := &SessionStatusResponse{
		Session:    sess.ID,
		Status:     types.SessionStatusName(sess.Status),
		TargetAddr: sess.TargetAddr,
		DropAmount: sess.DropAmount.String(),
	}
	if sess.Claim != nil {
		resp.ClaimIdx = sess.Claim.ClaimIdx
		resp.ClaimStatus = types.ClaimStatusName(sess.Claim.Status)
		resp.ClaimMessage = sess.Claim.TxError
		resp.TxHash = sess.Claim.TxHash
		resp.TxHeight = sess.Claim.TxHeight
		resp.TxFee = sess.Claim.TxFee
	}
	return resp
}
