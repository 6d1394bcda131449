// Package web serves the two-endpoint OAuth surface: /login redirects the
// user to the SSO, /callback finishes the exchange and hands the result to
// onboarding.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"skillwatch/internal/esi"
	"skillwatch/internal/monitor"
)

const expiredText = "Your token expired. Use /monitor on Telegram to try again."

// Authenticator is the SSO side of the flow; implemented by esi.Client.
type Authenticator interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (access, refresh string, err error)
}

// Registrar starts monitoring an authenticated character; implemented by
// monitor.Onboarding.
type Registrar interface {
	Register(ctx context.Context, characterID int64, characterName string, ownerID int64, refreshToken string) (monitor.Target, error)
}

type Server struct {
	pending *PendingStore
	auth    Authenticator
	reg     Registrar
	log     zerolog.Logger
	srv     *http.Server
}

func NewServer(listen string, pending *PendingStore, auth Authenticator, reg Registrar, log zerolog.Logger) *Server {
	s := &Server{pending: pending, auth: auth, reg: reg, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", s.handleLogin)
	mux.HandleFunc("GET /callback", s.handleCallback)

	s.srv = &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("webserver listening")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if !s.pending.Exists(state) {
		http.Error(w, expiredText, http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, s.auth.AuthorizeURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state, code := q.Get("state"), q.Get("code")

	ownerID, ok := s.pending.Owner(state)
	if !ok {
		http.Error(w, expiredText, http.StatusBadRequest)
		return
	}

	access, refresh, err := s.auth.ExchangeCode(r.Context(), code)
	if err != nil {
		s.log.Warn().Err(err).Msg("code exchange failed")
		s.pending.Report(state, "Authentication failed. Use /monitor to try again.")
		s.pending.Remove(state)
		fmt.Fprintln(w, "Authentication failed. Use /monitor on Telegram to try again. You can now safely close this tab.")
		return
	}

	claims, err := esi.DecodeCharacter(access)
	if err != nil {
		s.log.Error().Int64("owner_id", ownerID).Err(err).Msg("failed to decode SSO access token")
		s.pending.Report(state, "Internal error. Use /monitor to try again.")
		s.pending.Remove(state)
		fmt.Fprintln(w, "Authentication failed. Use /monitor on Telegram to try again. You can now safely close this tab.")
		return
	}

	// Registration runs the character's first update inline, which hits
	// the network; finish it in the background and report progress by
	// editing the user's chat reply.
	go s.finishRegistration(state, claims, ownerID, refresh)

	fmt.Fprintln(w, "You are now authenticated. Check Telegram for next steps. You can now safely close this tab.")
}

func (s *Server) finishRegistration(state string, claims esi.CharacterClaims, ownerID int64, refresh string) {
	defer s.pending.Remove(state)

	s.pending.Report(state, "Authentication successful. Creating channel ...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, err := s.reg.Register(ctx, claims.CharacterID, claims.Name, ownerID, refresh)
	switch {
	case errors.Is(err, monitor.ErrAlreadyMonitored):
		s.pending.Report(state, "This character is already actively monitored.")
	case err != nil:
		s.log.Error().Int64("character_id", claims.CharacterID).Err(err).Msg("registration failed")
		s.pending.Report(state, "Failed to set up monitoring. Use /monitor to try again.")
	default:
		s.pending.Report(state, fmt.Sprintf("%s is now monitored. Check the forum topics for updates.", claims.Name))
	}
}
