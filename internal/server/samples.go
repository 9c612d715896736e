package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	meteringdomain "github.com/smallbiznis/telemetry/internal/metering/domain"
)

type recordSampleRequest struct {
	Source           string                  `json:"source"`
	CounterName      string                  `json:"counter_name"`
	CounterType      string                  `json:"counter_type"`
	CounterUnit      string                  `json:"counter_unit"`
	CounterVolume    float64                 `json:"counter_volume"`
	UserID           string                  `json:"user_id"`
	ProjectID        string                  `json:"project_id"`
	ResourceID       string                  `json:"resource_id"`
	Timestamp        string                  `json:"timestamp"`
	ResourceMetadata meteringdomain.Metadata `json:"resource_metadata"`
	MessageID        string                  `json:"message_id"`
	MessageSignature string                  `json:"message_signature"`
}

type filterQuery struct {
	User     string `form:"user_id"`
	Project  string `form:"project_id"`
	Resource string `form:"resource_id"`
	Source   string `form:"source"`
	Meter    string `form:"meter"`
	Start    string `form:"start"`
	End      string `form:"end"`
}

func (s *Server) RecordSample(c *gin.Context) {
	var req recordSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var ts time.Time
	if strings.TrimSpace(req.Timestamp) != "" {
		parsed, err := parseOptionalTime(req.Timestamp)
		if err != nil {
			AbortWithError(c, newValidationError("timestamp", "invalid_timestamp", "invalid timestamp"))
			return
		}
		ts = *parsed
	}

	meter, err := s.meteringSvc.RecordMeteringData(c.Request.Context(), meteringdomain.Sample{
		Source:           req.Source,
		CounterName:      req.CounterName,
		CounterType:      req.CounterType,
		CounterUnit:      req.CounterUnit,
		CounterVolume:    req.CounterVolume,
		UserID:           req.UserID,
		ProjectID:        req.ProjectID,
		ResourceID:       req.ResourceID,
		Timestamp:        ts,
		ResourceMetadata: req.ResourceMetadata,
		MessageID:        req.MessageID,
		MessageSignature: req.MessageSignature,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"id":         meter.ID.String(),
		"message_id": meter.MessageID,
		"timestamp":  meter.Timestamp,
	}})
}

func (s *Server) bindFilter(c *gin.Context) (filterQuery, *time.Time, *time.Time, bool) {
	var query filterQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return query, nil, nil, false
	}
	start, err := parseOptionalTime(query.Start)
	if err != nil {
		AbortWithError(c, newValidationError("start", "invalid_time", "invalid start"))
		return query, nil, nil, false
	}
	end, err := parseOptionalTime(query.End)
	if err != nil {
		AbortWithError(c, newValidationError("end", "invalid_time", "invalid end"))
		return query, nil, nil, false
	}
	return query, start, end, true
}

func (s *Server) ListSamples(c *gin.Context) {
	query, start, end, ok := s.bindFilter(c)
	if !ok {
		return
	}

	resp, err := s.meteringSvc.GetSamples(c.Request.Context(), meteringdomain.SampleFilter{
		User:      strings.TrimSpace(query.User),
		Project:   strings.TrimSpace(query.Project),
		Resource:  strings.TrimSpace(query.Resource),
		Source:    strings.TrimSpace(query.Source),
		Meter:     strings.TrimSpace(query.Meter),
		Start:     start,
		End:       end,
		MetaQuery: metaQuery(c.Request.URL.Query()),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListUsers(c *gin.Context) {
	resp, err := s.meteringSvc.GetUsers(c.Request.Context(), strings.TrimSpace(c.Query("source")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProjects(c *gin.Context) {
	resp, err := s.meteringSvc.GetProjects(c.Request.Context(), strings.TrimSpace(c.Query("source")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListResources(c *gin.Context) {
	query, start, end, ok := s.bindFilter(c)
	if !ok {
		return
	}

	resp, err := s.meteringSvc.GetResources(c.Request.Context(), meteringdomain.ResourceFilter{
		User:      strings.TrimSpace(query.User),
		Project:   strings.TrimSpace(query.Project),
		Resource:  strings.TrimSpace(query.Resource),
		Source:    strings.TrimSpace(query.Source),
		Start:     start,
		End:       end,
		MetaQuery: metaQuery(c.Request.URL.Query()),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMeters(c *gin.Context) {
	query, _, _, ok := s.bindFilter(c)
	if !ok {
		return
	}

	resp, err := s.meteringSvc.GetMeters(c.Request.Context(), meteringdomain.MeterFilter{
		User:      strings.TrimSpace(query.User),
		Project:   strings.TrimSpace(query.Project),
		Resource:  strings.TrimSpace(query.Resource),
		Source:    strings.TrimSpace(query.Source),
		MetaQuery: metaQuery(c.Request.URL.Query()),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
