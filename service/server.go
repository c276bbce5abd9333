// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/cctp"
	"github.com/luxfi/cctp/backend"
	"github.com/luxfi/cctp/payload"
)

// AttestationStatusComplete marks a fully signed attestation. The service
// signs synchronously, so it is the only status it reports.
const AttestationStatusComplete = "complete"

// AttestRequest is the body of POST /v2/attest.
type AttestRequest struct {
	// Message is the hex-encoded serialized message. A 0x prefix is allowed.
	Message string `json:"message"`
}

// AttestationResponse reports a signed attestation. Byte fields are hex
// encoded without a 0x prefix.
type AttestationResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Attestation string `json:"attestation"`
	EventNonce  string `json:"eventNonce"`
}

// Server exposes a Service over HTTP.
type Server struct {
	logger  log.Logger
	service *Service
	router  *gin.Engine
}

// NewServer mounts the attestation routes on a fresh gin engine. A non-nil
// gatherer additionally exposes its metrics at GET /metrics.
func NewServer(logger log.Logger, service *Service, gatherer prometheus.Gatherer) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		logger:  logger,
		service: service,
		router:  router,
	}

	router.GET("/healthz", s.health)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		))
	}

	v2 := router.Group("/v2")
	v2.POST("/attest", s.attest)
	v2.GET("/attestations/:digest", s.attestation)
	v2.POST("/reattest/:digest", s.reattest)

	return s
}

// Router returns the handler, for tests and custom http.Server setups.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves the API on addr until the listener fails.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) attest(c *gin.Context) {
	start := time.Now()

	var req AttestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("could not decode attest request", log.Err(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not decode request body"})
		return
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(req.Message, "0x"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is not valid hex"})
		return
	}

	record, err := s.service.Attest(c.Request.Context(), raw)
	if err != nil {
		s.logger.Warn("attestation refused", log.Err(err))
		c.JSON(attestStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp, err := newAttestationResponse(record)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.service.metrics.attestLatencyMS.Set(float64(time.Since(start).Milliseconds()))
	c.JSON(http.StatusOK, resp)
}

func (s *Server) attestation(c *gin.Context) {
	digest, ok := s.digestParam(c)
	if !ok {
		return
	}

	record, err := s.service.Attestation(c.Request.Context(), digest)
	if err != nil {
		c.JSON(lookupStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp, err := newAttestationResponse(record)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) reattest(c *gin.Context) {
	digest, ok := s.digestParam(c)
	if !ok {
		return
	}

	record, err := s.service.Reattest(c.Request.Context(), digest)
	if err != nil {
		s.logger.Warn("reattestation refused", log.Err(err))
		c.JSON(lookupStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp, err := newAttestationResponse(record)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// digestParam parses the :digest path parameter as a hex message digest.
// It writes the error response itself so handlers can just bail out.
func (s *Server) digestParam(c *gin.Context) (ids.ID, bool) {
	raw, err := hex.DecodeString(strings.TrimPrefix(c.Param("digest"), "0x"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "digest is not valid hex"})
		return ids.Empty, false
	}
	digest, err := ids.ToID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return ids.Empty, false
	}
	return digest, true
}

func newAttestationResponse(record *backend.MessageRecord) (AttestationResponse, error) {
	msg, err := cctp.ParseMessage(record.Message)
	if err != nil {
		return AttestationResponse{}, err
	}
	return AttestationResponse{
		Status:      AttestationStatusComplete,
		Message:     hex.EncodeToString(record.Message),
		Attestation: hex.EncodeToString(record.Attestation),
		EventNonce:  hex.EncodeToString(msg.Nonce[:]),
	}, nil
}

// attestStatus distinguishes messages the service refuses to sign from
// internal failures.
func attestStatus(err error) int {
	switch {
	case errors.Is(err, cctp.ErrInvalidMessage),
		errors.Is(err, ErrFinalityNotReached),
		errors.Is(err, payload.ErrFeeInvariant):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func lookupStatus(err error) int {
	if errors.Is(err, ErrUnknownDigest) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
