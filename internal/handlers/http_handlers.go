package handlers

import (
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"raffle/internal/engine"
	"raffle/internal/logger"
	"raffle/internal/storage"
	"raffle/internal/vault"
)

// HTTPHandler exposes the registry over HTTP. Caller identity travels in
// the request body; signing infrastructure is outside this service, so the
// transport trusts its deployment perimeter for everything except the
// oracle callback and the signature-gated purchase paths.
type HTTPHandler struct {
	registry *engine.Registry
	vault    *vault.Vault
	store    storage.Storage
}

func NewHTTPHandler(registry *engine.Registry, v *vault.Vault, store storage.Storage) *HTTPHandler {
	return &HTTPHandler{
		registry: registry,
		vault:    v,
		store:    store,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/raffles/operator", h.CreateOperatorRaffle)
	router.POST("/raffles/user", h.CreateUserRaffle)
	router.GET("/raffles/:key", h.GetRaffle)
	router.GET("/raffles/:key/entries", h.GetEntries)
	router.GET("/raffles/:key/events", h.GetEvents)
	router.POST("/raffles/:key/entries", h.BuyEntry)
	router.POST("/raffles/:key/entries/discount", h.BuyDiscountEntry)
	router.POST("/raffles/:key/entries/free", h.BuyFreeEntry)
	router.POST("/raffles/:key/winner", h.SetWinner)
	router.PUT("/raffles/:key/max-entries", h.SetMaxEntriesPerBuyer)
	router.POST("/oracle/fulfill", h.FulfillRandomness)
	router.POST("/vault/claims", h.ClaimReferralReward)
	router.POST("/admin/operators", h.SetOperatorRole)
	router.POST("/admin/signer", h.RotateSigner)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownRaffle),
		errors.Is(err, engine.ErrUnknownTier),
		errors.Is(err, engine.ErrUnknownRequest):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnauthorized),
		errors.Is(err, engine.ErrInvalidSignature),
		errors.Is(err, engine.ErrCollectionNotWhitelisted):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrRaffleFinished),
		errors.Is(err, engine.ErrNotYetFinished),
		errors.Is(err, engine.ErrAlreadyFinished),
		errors.Is(err, engine.ErrRequestAlreadyPending),
		errors.Is(err, engine.ErrGrantConsumed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrExceedsRaffleCap),
		errors.Is(err, engine.ErrExceedsBuyerCap),
		errors.Is(err, engine.ErrTicketCountZero),
		errors.Is(err, engine.ErrIncorrectPayment),
		errors.Is(err, engine.ErrNoEntriesSold),
		errors.Is(err, engine.ErrCollateralNotOwned),
		errors.Is(err, engine.ErrCollateralNotApproved):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.New("invalid amount: " + s)
	}
	return v, nil
}

func parseSig(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func (h *HTTPHandler) key(c *gin.Context) (engine.Key, bool) {
	key, err := engine.ParseKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return engine.Key{}, false
	}
	return key, true
}

// persistSnapshot mirrors a raffle's state into storage after a successful
// mutation. Journal failures never fail the request.
func (h *HTTPHandler) persistSnapshot(key engine.Key) {
	snap, err := h.registry.Raffle(key)
	if err != nil {
		return
	}
	if err := h.store.UpsertRaffle(storage.RecordFromSnapshot(snap)); err != nil {
		logger.Error("persist raffle snapshot", zap.String("raffle", key.Hex()), zap.Error(err))
	}
}

type tierRequest struct {
	ID         uint32 `json:"id"`
	EntryCount uint64 `json:"entryCount"`
	Price      string `json:"price"`
}

type operatorCreateRequest struct {
	Caller            string        `json:"caller" binding:"required"`
	RaffleType        uint8         `json:"raffleType"`
	CollateralAddress string        `json:"collateralAddress" binding:"required"`
	CollateralParam   string        `json:"collateralParam"`
	MinEntryCount     uint64        `json:"minEntryCount"`
	MaxEntryCount     uint64        `json:"maxEntryCount" binding:"required"`
	EndTime           int64         `json:"endTime" binding:"required"`
	MaxPerBuyer       uint64        `json:"maxEntriesPerBuyer"`
	Tiers             []tierRequest `json:"tiers" binding:"required"`
}

func (h *HTTPHandler) CreateOperatorRaffle(c *gin.Context) {
	var req operatorCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	param, err := parseAmount(req.CollateralParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tiers := make([]engine.PriceTier, 0, len(req.Tiers))
	for _, t := range req.Tiers {
		price, err := parseAmount(t.Price)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tiers = append(tiers, engine.PriceTier{ID: t.ID, EntryCount: t.EntryCount, Price: price})
	}

	key, err := h.registry.CreateOperatorRaffle(engine.Address(req.Caller), engine.OperatorCreateParams{
		RaffleType:         engine.RaffleType(req.RaffleType),
		CollateralAddress:  engine.Address(req.CollateralAddress),
		CollateralParam:    param,
		MinEntryCount:      req.MinEntryCount,
		MaxEntryCount:      req.MaxEntryCount,
		EndTime:            time.Unix(req.EndTime, 0),
		MaxEntriesPerBuyer: req.MaxPerBuyer,
	}, tiers)
	if err != nil {
		fail(c, err)
		return
	}
	h.persistSnapshot(key)
	c.JSON(http.StatusCreated, gin.H{"key": key.Hex()})
}

type userCreateRequest struct {
	Caller            string `json:"caller" binding:"required"`
	RaffleType        uint8  `json:"raffleType"`
	CollateralAddress string `json:"collateralAddress" binding:"required"`
	CollateralParam   string `json:"collateralParam"`
	EntrySupply       uint64 `json:"entrySupply" binding:"required"`
	UnitPrice         string `json:"unitPrice"`
	EndTime           int64  `json:"endTime" binding:"required"`
	Signature         string `json:"signature" binding:"required"`
}

func (h *HTTPHandler) CreateUserRaffle(c *gin.Context) {
	var req userCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	param, err := parseAmount(req.CollateralParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	unitPrice, err := parseAmount(req.UnitPrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, err := parseSig(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := h.registry.CreateUserRaffle(engine.Address(req.Caller), engine.UserCreateParams{
		RaffleType:        engine.RaffleType(req.RaffleType),
		CollateralAddress: engine.Address(req.CollateralAddress),
		CollateralParam:   param,
		EntrySupply:       req.EntrySupply,
		UnitPrice:         unitPrice,
		EndTime:           time.Unix(req.EndTime, 0),
	}, sig)
	if err != nil {
		fail(c, err)
		return
	}
	h.persistSnapshot(key)
	c.JSON(http.StatusCreated, gin.H{"key": key.Hex()})
}

type buyEntryRequest struct {
	Buyer        string `json:"buyer" binding:"required"`
	TierID       uint32 `json:"tierId"`
	Payment      string `json:"payment"`
	Referral     string `json:"referral"`
	ReferralTier uint32 `json:"referralTier"`
}

func (h *HTTPHandler) BuyEntry(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	var req buyEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, err := parseAmount(req.Payment)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.BuyEntry(key, engine.Address(req.Buyer), req.TierID, payment, engine.Address(req.Referral), req.ReferralTier); err != nil {
		fail(c, err)
		return
	}
	h.persistSnapshot(key)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type buyDiscountRequest struct {
	Buyer             string `json:"buyer" binding:"required"`
	TierID            uint32 `json:"tierId"`
	Collection        string `json:"collection" binding:"required"`
	CollectionTokenID uint64 `json:"collectionTokenId"`
	DiscountBps       uint32 `json:"discountBps"`
	Payment           string `json:"payment"`
	Signature         string `json:"signature" binding:"required"`
}

func (h *HTTPHandler) BuyDiscountEntry(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	var req buyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, err := parseAmount(req.Payment)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, err := parseSig(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.BuyDiscountEntry(key, engine.Address(req.Buyer), req.TierID, engine.Address(req.Collection), req.CollectionTokenID, req.DiscountBps, payment, sig); err != nil {
		fail(c, err)
		return
	}
	h.persistSnapshot(key)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type buyFreeRequest struct {
	Buyer             string `json:"buyer" binding:"required"`
	EntryCount        uint64 `json:"entryCount"`
	Collection        string `json:"collection"`
	CollectionTokenID uint64 `json:"collectionTokenId"`
	Signature         string `json:"signature" binding:"required"`
}

func (h *HTTPHandler) BuyFreeEntry(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	var req buyFreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, err := parseSig(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.BuyFreeEntry(key, engine.Address(req.Buyer), req.EntryCount, engine.Address(req.Collection), req.CollectionTokenID, sig); err != nil {
		fail(c, err)
		return
	}
	h.persistSnapshot(key)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type callerRequest struct {
	Caller string `json:"caller" binding:"required"`
}

func (h *HTTPHandler) SetWinner(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	var req callerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.SetWinner(engine.Address(req.Caller), key); err != nil {
		fail(c, err)
		return
	}
	h.persistSnapshot(key)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type maxEntriesRequest struct {
	Caller string `json:"caller" binding:"required"`
	Max    uint64 `json:"max"`
}

func (h *HTTPHandler) SetMaxEntriesPerBuyer(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	var req maxEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.SetMaxEntriesPerBuyer(engine.Address(req.Caller), key, req.Max); err != nil {
		fail(c, err)
		return
	}
	h.persistSnapshot(key)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) GetRaffle(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	snap, err := h.registry.Raffle(key)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotResponse(snap))
}

func snapshotResponse(s engine.Snapshot) gin.H {
	resp := gin.H{
		"key":                s.Key.Hex(),
		"raffleType":         s.RaffleType.String(),
		"collateralAddress":  string(s.CollateralAddress),
		"collateralParam":    s.CollateralParam.String(),
		"creator":            string(s.Creator),
		"endTime":            s.EndTime.Unix(),
		"operator":           s.Operator,
		"maxEntriesPerBuyer": s.MaxEntriesPerBuyer,
		"totalEntriesSold":   s.TotalEntriesSold,
		"purchases":          s.Purchases,
		"collectedFunds":     s.CollectedFunds.String(),
		"finished":           s.Finished,
		"winner":             string(s.Winner),
	}
	if s.Operator {
		resp["minEntryCount"] = s.MinEntryCount
		resp["maxEntryCount"] = s.MaxEntryCount
	} else {
		resp["entrySupply"] = s.EntrySupply
		resp["unitPrice"] = s.UnitPrice.String()
	}
	return resp
}

func (h *HTTPHandler) GetEntries(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	ranges, err := h.registry.Entries(key)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, gin.H{
			"buyer":       string(r.Buyer),
			"startTicket": r.StartTicket,
			"endTicket":   r.EndTicket,
			"pricePaid":   r.PricePaid.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

func (h *HTTPHandler) GetEvents(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	records, err := h.store.GetEventsByRaffle(key.Hex())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(records))
	for _, rec := range records {
		out = append(out, gin.H{
			"kind":      rec.Kind,
			"payload":   rec.Payload,
			"createdAt": rec.CreatedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

type fulfillRequest struct {
	RequestID   string `json:"requestId" binding:"required"`
	RandomValue string `json:"randomValue" binding:"required"`
}

// FulfillRandomness is the inbound oracle callback. The oracle principal
// identifies itself in the X-Oracle-Principal header.
func (h *HTTPHandler) FulfillRandomness(c *gin.Context) {
	var req fulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	value, err := parseAmount(req.RandomValue)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	principal := engine.Address(c.GetHeader("X-Oracle-Principal"))
	key, err := h.registry.FulfillRandomness(principal, engine.RequestID(req.RequestID), value)
	if err != nil {
		fail(c, err)
		return
	}
	h.persistSnapshot(key)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "key": key.Hex()})
}

type claimRequest struct {
	Target    string `json:"target" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature" binding:"required"`
}

func (h *HTTPHandler) ClaimReferralReward(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, err := parseSig(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.vault.ClaimReferralReward(engine.Address(req.Target), amount, req.Nonce, sig); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type operatorRoleRequest struct {
	Caller   string `json:"caller" binding:"required"`
	Operator string `json:"operator" binding:"required"`
	Grant    bool   `json:"grant"`
}

func (h *HTTPHandler) SetOperatorRole(c *gin.Context) {
	var req operatorRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var err error
	if req.Grant {
		err = h.registry.GrantOperator(engine.Address(req.Caller), engine.Address(req.Operator))
	} else {
		err = h.registry.RevokeOperator(engine.Address(req.Caller), engine.Address(req.Operator))
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type rotateSignerRequest struct {
	Caller    string `json:"caller" binding:"required"`
	PublicKey string `json:"publicKey" binding:"required"`
}

func (h *HTTPHandler) RotateSigner(c *gin.Context) {
	var req rotateSignerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.RotateSigner(engine.Address(req.Caller), req.PublicKey); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
