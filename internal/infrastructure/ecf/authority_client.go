package ecf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jhoicas/ecf-api/internal/domain"
	domainecf "github.com/jhoicas/ecf-api/internal/domain/ecf"
	catalog "github.com/jhoicas/ecf-api/pkg/ecf"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	// EnvTest ambiente de pruebas de la autoridad.
	EnvTest = "test"
	// EnvCert ambiente de certificación.
	EnvCert = "cert"
	// EnvProd ambiente de producción.
	EnvProd = "prod"

	baseURLTest = "https://ecf.dgii.gov.do/testecf"
	baseURLCert = "https://ecf.dgii.gov.do/certecf"
	baseURLProd = "https://ecf.dgii.gov.do/ecf"

	pathAuth     = "/auth/token"
	pathReceive  = "/recepcion"
	pathStatus   = "/consulta/"
	tokenKey     = "bearer"
	maxBodyBytes = 1 << 20 // 1 MB
)

// BaseURLFor URL base por ambiente; cadena vacía si el ambiente no existe.
func BaseURLFor(env string) string {
	switch env {
	case EnvTest:
		return baseURLTest
	case EnvCert:
		return baseURLCert
	case EnvProd:
		return baseURLProd
	default:
		return ""
	}
}

// ── Configuración y resultados ────────────────────────────────────────────────

// AuthorityConfig credenciales y políticas de red del cliente.
type AuthorityConfig struct {
	BaseURL          string
	Username         string
	Password         string
	FiscalID         string // RNC del emisor, viaja en la autenticación y en X-Fiscal-Id
	Timeout          time.Duration
	RateLimitRPS     float64
	TokenRefreshSkew time.Duration
}

// SubmitResult respuesta de la recepción (aceptado para proceso, no aceptación final).
type SubmitResult struct {
	TrackID string
	Message string
	Raw     string
}

// StatusResult respuesta de la consulta reducida al estado canónico.
type StatusResult struct {
	Status catalog.AuthorityStatus
	Detail string // texto de la autoridad, literal
	Raw    string
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FiscalID string `json:"fiscalId"`
}

type authResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"` // segundos
}

type receiveResponse struct {
	TrackID string `json:"trackId"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ── Cliente HTTP ──────────────────────────────────────────────────────────────

// AuthorityClient implementa el protocolo de la autoridad: token, recepción y consulta.
// Cada llamada tiene timeout explícito y pasa por el limitador de tasa.
type AuthorityClient struct {
	cfg        AuthorityConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     *cache.Cache
	authMu     sync.Mutex
	log        zerolog.Logger
}

// NewAuthorityClient construye el cliente. Sin RateLimitRPS no hay límite de tasa.
func NewAuthorityClient(cfg AuthorityConfig, log zerolog.Logger) *AuthorityClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TokenRefreshSkew <= 0 {
		cfg.TokenRefreshSkew = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	limit := rate.Inf
	burst := 1
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
		burst = max(1, int(cfg.RateLimitRPS))
	}
	return &AuthorityClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		tokens:     cache.New(10*time.Minute, time.Minute),
		log:        log.With().Str("component", "authority_client").Logger(),
	}
}

// Authenticate obtiene un token nuevo y lo guarda hasta expiresIn menos el margen de refresco.
func (c *AuthorityClient) Authenticate(ctx context.Context) (string, error) {
	payload, err := json.Marshal(authRequest{
		Username: c.cfg.Username,
		Password: c.cfg.Password,
		FiscalID: c.cfg.FiscalID,
	})
	if err != nil {
		return "", fmt.Errorf("autoridad: serializar credenciales: %w", err)
	}
	status, body, err := c.do(ctx, "auth", http.MethodPost, pathAuth, "application/json", payload, nil)
	if err != nil {
		return "", err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return "", &domain.TransientError{Op: "auth", Err: fmt.Errorf("HTTP %d", status)}
	default:
		return "", fmt.Errorf("autoridad: %w: credenciales rechazadas (HTTP %d)", domain.ErrUnauthorized, status)
	}

	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		return "", &domain.TransientError{Op: "auth", Err: errors.New("respuesta de token inválida")}
	}
	ttl := cache.DefaultExpiration
	if resp.ExpiresIn > 0 {
		ttl = max(time.Duration(resp.ExpiresIn)*time.Second-c.cfg.TokenRefreshSkew, time.Second)
	}
	c.tokens.Set(tokenKey, resp.Token, ttl)
	c.log.Debug().Dur("ttl", ttl).Msg("token de la autoridad renovado")
	return resp.Token, nil
}

// Token devuelve el token en caché o se autentica de nuevo si expiró.
func (c *AuthorityClient) Token(ctx context.Context) (string, error) {
	if tok, ok := c.tokens.Get(tokenKey); ok {
		return tok.(string), nil
	}
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if tok, ok := c.tokens.Get(tokenKey); ok {
		return tok.(string), nil
	}
	return c.Authenticate(ctx)
}

// InvalidateToken fuerza una autenticación en la próxima llamada.
func (c *AuthorityClient) InvalidateToken() {
	c.tokens.Delete(tokenKey)
}

// Submit envía el documento firmado. El número fiscal viaja como Idempotency-Key.
// 200/202 → track id; 401 → token invalidado + TransientError; otro 4xx → RejectionError;
// 5xx, timeout o red → TransientError.
func (c *AuthorityClient) Submit(ctx context.Context, doc *domainecf.SignedDocument, token string) (*SubmitResult, error) {
	if doc == nil || len(doc.Bytes) == 0 {
		return nil, fmt.Errorf("autoridad: %w: documento firmado vacío", domain.ErrInvalidInput)
	}
	headers := map[string]string{
		"Authorization":   "Bearer " + token,
		"X-Fiscal-Id":     c.cfg.FiscalID,
		"Idempotency-Key": doc.FiscalNumber,
	}
	status, body, err := c.do(ctx, "recepcion", http.MethodPost, pathReceive, "application/xml", doc.Bytes, headers)
	if err != nil {
		return nil, err
	}

	var resp receiveResponse
	_ = json.Unmarshal(body, &resp)
	raw := string(body)

	switch {
	case status == http.StatusOK || status == http.StatusAccepted,
		status == http.StatusConflict && resp.TrackID != "": // ya recibido con esta Idempotency-Key
		if resp.TrackID == "" {
			return nil, &domain.TransientError{Op: "recepcion", Err: errors.New("respuesta sin trackId")}
		}
		return &SubmitResult{TrackID: resp.TrackID, Message: resp.Message, Raw: raw}, nil
	case status == http.StatusUnauthorized:
		c.InvalidateToken()
		return nil, &domain.TransientError{Op: "recepcion", Err: errors.New("token expirado o inválido (HTTP 401)")}
	case status == http.StatusTooManyRequests, status >= 500:
		return nil, &domain.TransientError{Op: "recepcion", Err: fmt.Errorf("HTTP %d", status)}
	default:
		reason := resp.Message
		if reason == "" {
			reason = raw
		}
		return nil, &domain.RejectionError{StatusCode: status, Reason: reason}
	}
}

// CheckStatus consulta el track id y traduce el vocabulario de la autoridad.
func (c *AuthorityClient) CheckStatus(ctx context.Context, trackID, token string) (*StatusResult, error) {
	if trackID == "" {
		return nil, fmt.Errorf("autoridad: %w: track id vacío", domain.ErrInvalidInput)
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	status, body, err := c.do(ctx, "consulta", http.MethodGet, pathStatus+url.PathEscape(trackID), "", nil, headers)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusUnauthorized:
		c.InvalidateToken()
		return nil, &domain.TransientError{Op: "consulta", Err: errors.New("token expirado o inválido (HTTP 401)")}
	case status == http.StatusNotFound, status == http.StatusTooManyRequests, status >= 500:
		// 404: la consulta puede ir por detrás de la recepción
		return nil, &domain.TransientError{Op: "consulta", Err: fmt.Errorf("HTTP %d", status)}
	default:
		return nil, fmt.Errorf("autoridad: consulta %s: HTTP %d: %s", trackID, status, string(body))
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.TransientError{Op: "consulta", Err: fmt.Errorf("respuesta inválida: %w", err)}
	}
	detail := resp.Message
	if detail == "" {
		detail = resp.Status
	}
	return &StatusResult{
		Status: catalog.MapAuthorityStatus(resp.Status),
		Detail: detail,
		Raw:    string(body),
	}, nil
}

// do ejecuta una llamada con límite de tasa y timeout propio. Los fallos de red y los
// timeouts se devuelven como TransientError; nunca como éxito.
func (c *AuthorityClient) do(ctx context.Context, op, method, path, contentType string, payload []byte, headers map[string]string) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, c.networkError(ctx, op, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("autoridad: crear request %s: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, c.networkError(ctx, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, c.networkError(ctx, op, fmt.Errorf("leer respuesta: %w", err))
	}
	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("llamada a la autoridad")
	return resp.StatusCode, raw, nil
}

// networkError distingue la cancelación del llamador (se propaga tal cual) de un timeout
// o fallo de red (transitorio).
func (c *AuthorityClient) networkError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("autoridad: %s: %w", op, ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		c.log.Warn().Str("op", op).Msg("timeout en llamada a la autoridad")
		return &domain.TransientError{Op: op, Err: fmt.Errorf("timeout: %w", err)}
	}
	return &domain.TransientError{Op: op, Err: err}
}
