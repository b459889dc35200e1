// Package apiv1 exposes the memory engine over REST.
package apiv1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hbt123-123/firemark/ai/embedding"
	"github.com/hbt123-123/firemark/ai/memory"
)

// ProviderLister reports the configured embedding providers without
// exposing credentials.
type ProviderLister interface {
	Info() []embedding.ProviderInfo
}

// APIV1Service holds the handlers for the /api/v1 route group.
type APIV1Service struct {
	memory    *memory.Service
	providers ProviderLister
}

// RegisterRoutes binds every v1 endpoint onto the given group.
func RegisterRoutes(g *echo.Group, memoryService *memory.Service, providers ProviderLister) {
	s := &APIV1Service{memory: memoryService, providers: providers}

	g.POST("/memories", s.addMemory)
	g.POST("/memories/batch", s.addMemoryBatch)
	g.GET("/memories/search", s.searchMemories)
	g.GET("/memories/recent", s.recentMemories)
	g.DELETE("/memories/:id", s.deleteMemory)
	g.POST("/memories/rebuild", s.rebuildEmbeddings)
	g.GET("/users/:id/profile", s.userProfile)
	g.GET("/embedding/providers", s.listProviders)
}

type addMemoryRequest struct {
	CreatorID  int32          `json:"creator_id"`
	MemoryType string         `json:"type"`
	Content    any            `json:"content"`
	Context    map[string]any `json:"context"`
	Embed      *bool          `json:"embed"`
}

func (s *APIV1Service) addMemory(c echo.Context) error {
	request := &addMemoryRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}
	if request.CreatorID <= 0 || request.MemoryType == "" || request.Content == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "creator_id, type and content are required")
	}

	embed := request.Embed == nil || *request.Embed
	id, err := s.memory.AddMemory(c.Request().Context(), request.CreatorID, request.MemoryType, request.Content, request.Context, embed)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to add memory").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id})
}

type addMemoryBatchRequest struct {
	Entries []addMemoryRequest `json:"entries"`
}

func (s *APIV1Service) addMemoryBatch(c echo.Context) error {
	request := &addMemoryBatchRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}
	entries := make([]memory.Entry, 0, len(request.Entries))
	for _, e := range request.Entries {
		if e.CreatorID <= 0 || e.MemoryType == "" || e.Content == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "creator_id, type and content are required for every entry")
		}
		entries = append(entries, memory.Entry{
			CreatorID:  e.CreatorID,
			MemoryType: e.MemoryType,
			Content:    e.Content,
			Context:    e.Context,
		})
	}

	ids, err := s.memory.AddMemoryBatch(c.Request().Context(), entries)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to add memories").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ids": ids})
}

func (s *APIV1Service) searchMemories(c echo.Context) error {
	creatorID, err := parseID(c.QueryParam("creator_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid creator_id")
	}
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	memoryType := optionalString(c.QueryParam("type"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	useSemantic := c.QueryParam("semantic") != "false"

	var response *memory.SearchResponse
	if keyword := c.QueryParam("keyword"); keyword != "" {
		response, err = s.memory.SearchMemoriesHybrid(c.Request().Context(), creatorID, query, keyword, memoryType, limit)
	} else {
		response, err = s.memory.SearchMemories(c.Request().Context(), creatorID, query, memoryType, useSemantic, limit)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to search memories").SetInternal(err)
	}
	return c.JSON(http.StatusOK, response)
}

func (s *APIV1Service) deleteMemory(c echo.Context) error {
	memoryID, err := parseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid memory id")
	}
	creatorID, err := parseID(c.QueryParam("creator_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid creator_id")
	}

	if err := s.memory.DeleteMemory(c.Request().Context(), creatorID, memoryID); err != nil {
		if errors.Is(err, memory.ErrMemoryNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "memory not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete memory").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) recentMemories(c echo.Context) error {
	creatorID, err := parseID(c.QueryParam("creator_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid creator_id")
	}
	memoryType := optionalString(c.QueryParam("type"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	results, err := s.memory.GetRecentMemories(c.Request().Context(), creatorID, memoryType, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list memories").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

func (s *APIV1Service) userProfile(c echo.Context) error {
	creatorID, err := parseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	userProfile, err := s.memory.GetUserProfile(c.Request().Context(), creatorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to build user profile").SetInternal(err)
	}
	return c.JSON(http.StatusOK, userProfile)
}

type rebuildRequest struct {
	CreatorID  *int32  `json:"creator_id"`
	MemoryType *string `json:"type"`
}

func (s *APIV1Service) rebuildEmbeddings(c echo.Context) error {
	request := &rebuildRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}

	report, err := s.memory.RebuildMissingEmbeddings(c.Request().Context(), request.CreatorID, request.MemoryType)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start rebuild").SetInternal(err)
	}
	return c.JSON(http.StatusAccepted, report)
}

func (s *APIV1Service) listProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"providers": s.providers.Info()})
}

func parseID(raw string) (int32, error) {
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, echo.ErrBadRequest
	}
	return int32(id), nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
