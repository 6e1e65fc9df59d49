package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lookupcache/internal/lookup"
	"github.com/charlesng35/lookupcache/pkg/response"
)

// LookupHandler serves fetch-or-populate lookups.
type LookupHandler struct {
	acronyms *lookup.Service[lookup.Acronym]
	weather  *lookup.Service[lookup.Condition]
}

// NewLookupHandler constructs a lookup handler. Either service may be nil, in which case
// its endpoint reports 404.
func NewLookupHandler(acronyms *lookup.Service[lookup.Acronym], weather *lookup.Service[lookup.Condition]) *LookupHandler {
	return &LookupHandler{acronyms: acronyms, weather: weather}
}

// Acronym expands the :term path parameter.
func (h *LookupHandler) Acronym(c *gin.Context) {
	serveLookup(c, h.acronyms, c.Param("term"))
}

// Weather reports conditions for the :location path parameter.
func (h *LookupHandler) Weather(c *gin.Context) {
	serveLookup(c, h.weather, c.Param("location"))
}

func serveLookup[R any](c *gin.Context, svc *lookup.Service[R], key string) {
	if svc == nil {
		NotConfigured(c)
		return
	}

	result, err := svc.Lookup(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, result.Records, &response.Meta{
		Cache:  svc.Name(),
		Key:    result.Key,
		Cached: result.Cached,
		Count:  len(result.Records),
	})
}
