package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cw-faucet/faucetd/log"
	stg "github.com/cw-faucet/faucetd/storage"
	"github.com/cw-faucet/faucetd/types"
)

// wsUpgrader upgrades claim progress connections. Origin checking is left to
// the CORS layer; the faucet is a public service.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// claimWs attaches a notification subscriber for a claiming session
// GET /ws/claim?session=<id>
func (a *API) claimWs(w http.ResponseWriter, r *http.Request) {
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
	if sess.Status != types.SessionStatusClaiming || sess.Claim == nil {
		ErrNoClaimForSession.Write(w)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		log.Debugw("websocket upgrade failed", "session", id, "error", err)
		return
	}
	a.hub.Subscribe(conn, sess.Claim.ClaimIdx)
}
