package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// FakeAuthority servidor HTTP que imita el protocolo de la autoridad tributaria.
// Por defecto autentica, acepta la recepción (202) y responde "En Proceso" a la consulta.
type FakeAuthority struct {
	Server *httptest.Server

	mu              sync.Mutex
	authCalls       int
	submitCalls     int
	statusCalls     int
	authCode        int
	submitCode      int
	submitMessage   string
	submitDelay     time.Duration
	status          string
	statusMessage   string
	idempotencyKeys []string
	fiscalIDs       []string
	documents       [][]byte
}

// NewFakeAuthority levanta el servidor; se cierra al terminar la prueba.
func NewFakeAuthority(t testing.TB) *FakeAuthority {
	t.Helper()
	fa := &FakeAuthority{submitCode: http.StatusAccepted, status: "En Proceso"}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", fa.handleAuth)
	mux.HandleFunc("/recepcion", fa.handleSubmit)
	mux.HandleFunc("/consulta/", fa.handleStatus)
	fa.Server = httptest.NewServer(mux)
	t.Cleanup(fa.Server.Close)
	return fa
}

// URL base del servidor.
func (fa *FakeAuthority) URL() string { return fa.Server.URL }

// SetAuthResponse fuerza el código de /auth/token; 0 vuelve al comportamiento normal.
func (fa *FakeAuthority) SetAuthResponse(code int) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.authCode = code
}

// SetSubmitResponse fija el código y mensaje de la recepción.
func (fa *FakeAuthority) SetSubmitResponse(code int, message string) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.submitCode, fa.submitMessage = code, message
}

// SetSubmitDelay retrasa la recepción (para provocar timeouts).
func (fa *FakeAuthority) SetSubmitDelay(d time.Duration) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.submitDelay = d
}

// SetStatus fija el estado textual de la consulta.
func (fa *FakeAuthority) SetStatus(status, message string) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.status, fa.statusMessage = status, message
}

// Calls devuelve los conteos de autenticación, recepción y consulta.
func (fa *FakeAuthority) Calls() (auth, submit, status int) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.authCalls, fa.submitCalls, fa.statusCalls
}

// IdempotencyKeys claves recibidas en la recepción, en orden.
func (fa *FakeAuthority) IdempotencyKeys() []string {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return append([]string(nil), fa.idempotencyKeys...)
}

// FiscalIDs valores de X-Fiscal-Id recibidos.
func (fa *FakeAuthority) FiscalIDs() []string {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return append([]string(nil), fa.fiscalIDs...)
}

// LastDocument último cuerpo recibido en la recepción.
func (fa *FakeAuthority) LastDocument() []byte {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if len(fa.documents) == 0 {
		return nil
	}
	return fa.documents[len(fa.documents)-1]
}

func (fa *FakeAuthority) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		FiscalID string `json:"fiscalId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "credenciales inválidas"})
		return
	}
	fa.mu.Lock()
	fa.authCalls++
	n, code := fa.authCalls, fa.authCode
	fa.mu.Unlock()
	if code != 0 {
		writeJSON(w, code, map[string]any{"message": http.StatusText(code)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": fmt.Sprintf("tok-%d", n), "expiresIn": 3600})
}

func (fa *FakeAuthority) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token requerido"})
		return
	}
	body, _ := io.ReadAll(r.Body)
	key := r.Header.Get("Idempotency-Key")

	fa.mu.Lock()
	fa.submitCalls++
	fa.idempotencyKeys = append(fa.idempotencyKeys, key)
	fa.fiscalIDs = append(fa.fiscalIDs, r.Header.Get("X-Fiscal-Id"))
	fa.documents = append(fa.documents, body)
	code, msg, delay := fa.submitCode, fa.submitMessage, fa.submitDelay
	fa.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if code == http.StatusOK || code == http.StatusAccepted {
		writeJSON(w, code, map[string]any{"trackId": "TRK-" + key, "message": "Recibido"})
		return
	}
	writeJSON(w, code, map[string]any{"message": msg})
}

func (fa *FakeAuthority) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token requerido"})
		return
	}
	fa.mu.Lock()
	fa.statusCalls++
	status, msg := fa.status, fa.statusMessage
	fa.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "message": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
