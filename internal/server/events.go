package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/telemetry/internal/event/domain"
)

type recordEventsRequest struct {
	Events []eventRequest `json:"events"`
}

type eventRequest struct {
	EventName string         `json:"event_name"`
	Generated string         `json:"generated"`
	Traits    []traitRequest `json:"traits"`
}

type traitRequest struct {
	Name  string                `json:"name"`
	Type  eventdomain.TraitType `json:"dtype"`
	Value any                   `json:"value"`
}

type recordedTrait struct {
	ID   string                `json:"id"`
	Type eventdomain.TraitType `json:"dtype"`
}

type recordedEvent struct {
	ID     string          `json:"id"`
	Traits []recordedTrait `json:"traits"`
}

func (s *Server) RecordEvents(c *gin.Context) {
	var req recordEventsRequest
	decoder := json.NewDecoder(c.Request.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Events) == 0 {
		AbortWithError(c, newValidationError("events", "required", "events are required"))
		return
	}
	if len(req.Events) > maxBatchSize {
		AbortWithError(c, newValidationError("events", "too_many", fmt.Sprintf("at most %d events per batch", maxBatchSize)))
		return
	}
	c.Set("batch_size", len(req.Events))

	inputs := make([]eventdomain.EventInput, 0, len(req.Events))
	for i, ev := range req.Events {
		when, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(ev.Generated))
		if err != nil {
			AbortWithError(c, newValidationError(fmt.Sprintf("events[%d].generated", i), "invalid_timestamp", "generated must be an RFC 3339 timestamp"))
			return
		}
		traits := make([]eventdomain.TraitInput, 0, len(ev.Traits))
		for _, t := range ev.Traits {
			traits = append(traits, eventdomain.TraitInput{
				Name:  t.Name,
				Type:  t.Type,
				Value: coerceTraitValue(t.Type, t.Value),
			})
		}
		inputs = append(inputs, eventdomain.EventInput{
			Name:   ev.EventName,
			When:   when,
			Traits: traits,
		})
	}

	recorded, err := s.eventSvc.RecordEvents(c.Request.Context(), inputs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]recordedEvent, 0, len(recorded))
	for _, rec := range recorded {
		traits := make([]recordedTrait, 0, len(rec.Traits))
		for _, t := range rec.Traits {
			traits = append(traits, recordedTrait{ID: t.ID.String(), Type: t.Type})
		}
		resp = append(resp, recordedEvent{ID: rec.Event.ID.String(), Traits: traits})
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// coerceTraitValue turns JSON representations into the dynamic types the
// trait model expects. Anything it does not recognize is passed through so
// the type check reports it.
func coerceTraitValue(typ eventdomain.TraitType, raw any) any {
	if typ == eventdomain.TraitDatetime {
		if s, ok := raw.(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
				return ts
			}
		}
	}
	return raw
}

func (s *Server) ListEvents(c *gin.Context) {
	var query struct {
		Name  string `form:"event_name"`
		Start string `form:"start"`
		End   string `form:"end"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	start, err := parseOptionalTime(query.Start)
	if err != nil {
		AbortWithError(c, newValidationError("start", "invalid_time", "invalid start"))
		return
	}
	end, err := parseOptionalTime(query.End)
	if err != nil {
		AbortWithError(c, newValidationError("end", "invalid_time", "invalid end"))
		return
	}

	resp, err := s.eventSvc.GetEvents(c.Request.Context(), eventdomain.EventFilter{
		Start: start,
		End:   end,
		Name:  strings.TrimSpace(query.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
