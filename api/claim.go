package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cw-faucet/faucetd/dispenser"
	"github.com/cw-faucet/faucetd/log"
	stg "github.com/cw-faucet/faucetd/storage"
	"github.com/cw-faucet/faucetd/types"
)

// claimReward submits a claim for a claimable session
// POST /api/claimReward
func (a *API) claimReward(w http.ResponseWriter, r *http.Request) {
	req := ClaimRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if req.Session == "" {
		ErrMalformedParam.Withf("missing session").Write(w)
		return
	}

	stored, err := a.storage.Session(req.Session)
	if err != nil {
		if errors.Is(err, stg.ErrNotFound) {
			ErrSessionNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}

	// Work on a copy so a rejected claim does not leave overrides on the
	// cached session record.
	sessCopy := *stored
	sess := &sessCopy

	// User supplied overrides; validated by the pipeline.
	if req.Address != "" {
		sess.TargetAddr = req.Address
	}
	if req.Amount != "" {
		amount, err := types.BigIntFromString(req.Amount)
		if err != nil {
			ErrMalformedParam.Withf("invalid amount: %v", err).Write(w)
			return
		}
		sess.DropAmount = amount
	}

	if _, err := a.pipeline.CreateClaim(sess); err != nil {
		writeClaimError(w, err)
		return
	}
	httpWriteJSON(w, sessionStatusResponse(sess))
}

// writeClaimError maps pipeline domain errors onto coded API errors.
func writeClaimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispenser.ErrNotClaimable):
		ErrSessionNotClaimable.Write(w)
	case errors.Is(err, dispenser.ErrAmountTooLow):
		ErrAmountTooLow.Write(w)
	case errors.Is(err, dispenser.ErrAmountTooHigh):
		ErrAmountTooHigh.Write(w)
	case errors.Is(err, dispenser.ErrInvalidAddress):
		ErrInvalidAddress.Write(w)
	case errors.Is(err, dispenser.ErrRaceClaiming):
		ErrClaimRace.Write(w)
	default:
		log.Warnw("claim creation failed", "error", err)
		ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}

// sessionStatus returns the claim status of a session
// GET /api/getSessionStatus?session=<id>
func (a *API) sessionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(SessionURLParam)
	if id == "" {
		ErrMalformedParam.Withf("missing session").Write(w)
		return
	}
	sess, err := a.storage.Session(id)
	if err != nil {
		if errors.Is(err, stg.ErrNotFound) {
			ErrSessionNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, sessionStatusResponse(sess))
}

// queueStatus returns the aggregated queue snapshot, cached for 10 seconds
// GET /api/getQueueStatus
func (a *API) queueStatus(w http.ResponseWriter, _ *http.Request) {
	if cached, ok := a.queueStat.Get("queue"); ok {
		httpWriteJSON(w, cached)
		return
	}

	stats, err := a.storage.Stats()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	progress := a.pipeline.Progress()
	resp := &QueueStatusResponse{
		QueueLength:    a.pipeline.QueueLength(),
		PendingCount:   a.pipeline.PendingCount(),
		ProcessedIdx:   progress.ProcessedIdx,
		ConfirmedIdx:   progress.ConfirmedIdx,
		QueuedAmount:   a.pipeline.QueuedAmount(),
		ClaimCount:     stats.ClaimCount,
		TotalDispensed: stats.TotalDispensed,
	}
	if a.board != nil {
		resp.FaucetStatus = a.board.All()
	}
	a.queueStat.Add("queue", resp)
	httpWriteJSON(w, resp)
}
