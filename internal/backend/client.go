package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"cabbot/internal/config"
	"cabbot/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TokenProvider supplies the bearer token for one platform account. Injected
// explicitly instead of read from a process-global auth store, so tests can
// run without global setup.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is the common TokenProvider: a token stored at link time.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", errors.New("empty platform token")
	}
	return string(t), nil
}

// Client talks to the cab platform REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

func NewClient(cfg config.BackendConfig, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     logger,
	}
}

// UseRedisCache configures optional Redis caching for cheap GET endpoints
// (history, profile). The active-ride poll is never cached.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// Bind returns a per-account view of the client. All ride operations require
// a bound client; the zero-argument constructor stays account-agnostic.
func (c *Client) Bind(tokens TokenProvider) *UserClient {
	return &UserClient{client: c, tokens: tokens}
}

// UserClient is Client bound to one platform account.
type UserClient struct {
	client *Client
	tokens TokenProvider
}

// ActiveRide fetches the current booking snapshot for the role, or
// ErrNoActiveRide when the platform reports none.
func (u *UserClient) ActiveRide(ctx context.Context, role models.Role) (*models.Ride, error) {
	endpoint := fmt.Sprintf("%s/api/v1/rides/active?role=%s", u.client.baseURL, url.QueryEscape(string(role)))
	var ride models.Ride
	if err := u.doGet(ctx, endpoint, &ride); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrNoActiveRide
		}
		return nil, err
	}
	return &ride, nil
}

// StartRide moves an accepted ride into progress (driver only).
func (u *UserClient) StartRide(ctx context.Context, rideID string) (*models.Ride, error) {
	return u.rideAction(ctx, rideID, "start", nil)
}

// CancelRide cancels the ride with an optional reason.
func (u *UserClient) CancelRide(ctx context.Context, rideID, reason string) (*models.Ride, error) {
	return u.rideAction(ctx, rideID, "cancel", map[string]string{"reason": reason})
}

// CompleteRide ends the trip and triggers fare computation (driver only).
func (u *UserClient) CompleteRide(ctx context.Context, rideID string) (*models.Ride, error) {
	return u.rideAction(ctx, rideID, "complete", nil)
}

// PayRide settles the fare from the rider's wallet.
func (u *UserClient) PayRide(ctx context.Context, rideID string) (*models.Ride, error) {
	return u.rideAction(ctx, rideID, "pay", nil)
}

// ConfirmCashPayment records a cash payment received by the driver.
func (u *UserClient) ConfirmCashPayment(ctx context.Context, rideID string) (*models.Ride, error) {
	return u.rideAction(ctx, rideID, "confirm-cash", nil)
}

// RateRide submits the rider's rating for a paid ride.
func (u *UserClient) RateRide(ctx context.Context, rideID string, rating int, feedback string) (*models.Ride, error) {
	payload := map[string]interface{}{"rating": rating}
	if feedback != "" {
		payload["feedback"] = feedback
	}
	return u.rideAction(ctx, rideID, "rate", payload)
}

// RequestRide asks the platform for a new booking between two named points.
func (u *UserClient) RequestRide(ctx context.Context, pickup, dropoff string) (*models.Ride, error) {
	endpoint := fmt.Sprintf("%s/api/v1/rides", u.client.baseURL)
	body := map[string]string{
		"pickupLocationName":  pickup,
		"dropoffLocationName": dropoff,
	}
	var ride models.Ride
	if err := u.doPost(ctx, endpoint, body, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

// History returns finished rides, newest first. Cached when Redis is set.
func (u *UserClient) History(ctx context.Context, limit int) ([]models.RideHistoryEntry, error) {
	endpoint := fmt.Sprintf("%s/api/v1/rides/history?limit=%d", u.client.baseURL, limit)
	cacheKey, err := u.cacheKey(ctx, fmt.Sprintf("history:%d", limit))
	if err != nil {
		return nil, err
	}

	var wrap struct {
		Rides []models.RideHistoryEntry `json:"rides"`
	}
	if u.client.readCache(ctx, cacheKey, &wrap) {
		return wrap.Rides, nil
	}

	if err := u.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, err
	}
	u.client.writeCache(ctx, cacheKey, wrap)
	return wrap.Rides, nil
}

// Wallet returns the rider's balance.
func (u *UserClient) Wallet(ctx context.Context) (*models.Wallet, error) {
	endpoint := fmt.Sprintf("%s/api/v1/wallet", u.client.baseURL)
	var wallet models.Wallet
	if err := u.doGet(ctx, endpoint, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Profile returns the signed-in user's platform profile. Cached.
func (u *UserClient) Profile(ctx context.Context) (*models.Profile, error) {
	endpoint := fmt.Sprintf("%s/api/v1/profile", u.client.baseURL)
	cacheKey, err := u.cacheKey(ctx, "profile")
	if err != nil {
		return nil, err
	}

	var profile models.Profile
	if u.client.readCache(ctx, cacheKey, &profile) {
		return &profile, nil
	}

	if err := u.doGet(ctx, endpoint, &profile); err != nil {
		return nil, err
	}
	u.client.writeCache(ctx, cacheKey, profile)
	return &profile, nil
}

func (u *UserClient) rideAction(ctx context.Context, rideID, action string, body interface{}) (*models.Ride, error) {
	if rideID == "" {
		return nil, errors.New("ride id is required")
	}
	endpoint := fmt.Sprintf("%s/api/v1/rides/%s/%s", u.client.baseURL, url.PathEscape(rideID), action)
	var ride models.Ride
	if err := u.doPost(ctx, endpoint, body, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

// cacheKey namespaces cached reads per account so users never see each
// other's data. Keys carry a token digest, never the token itself.
func (u *UserClient) cacheKey(ctx context.Context, suffix string) (string, error) {
	tok, err := u.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(tok))
	return fmt.Sprintf("backend:%x:%s", digest[:8], suffix), nil
}

func (u *UserClient) doGet(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return u.do(req, out)
}

func (u *UserClient) doPost(ctx context.Context, endpoint string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return u.do(req, out)
}

func (u *UserClient) do(req *http.Request, out interface{}) error {
	tok, err := u.tokens.Token(req.Context())
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := u.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if body.Error != "" {
			apiErr.Message = body.Error
		} else {
			apiErr.Message = body.Message
		}
	}
	return apiErr
}

func (c *Client) readCache(ctx context.Context, key string, out interface{}) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val interface{}) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}
