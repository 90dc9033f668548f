package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trustlens/internal/domain"
	"trustlens/internal/repository"
	"trustlens/internal/service"
)

// AnalysisHandler expone rasgos y puntaje por una superficie separada
// de la de cargas.
type AnalysisHandler struct {
	logger    *zap.Logger
	uploadSvc *service.UploadService
}

func NewAnalysisHandler(logger *zap.Logger, uploadSvc *service.UploadService) *AnalysisHandler {
	return &AnalysisHandler{logger: logger, uploadSvc: uploadSvc}
}

// Get maneja GET /analysis/:id, donde :id es el trabajo de carga.
func (h *AnalysisHandler) Get(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	result, flags, err := h.uploadSvc.Analysis(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
		case errors.Is(err, service.ErrResultWithheld):
			c.JSON(http.StatusConflict, gin.H{"error": "result withheld pending review"})
		case errors.Is(err, service.ErrResultExpired):
			c.JSON(http.StatusGone, gin.H{"error": "result expired, submit a new upload"})
		default:
			h.logger.Error("analysis failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read analysis"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analysis": analysisView(result, flags),
	})
}

func analysisView(result domain.TrustScoreResult, flags []domain.BiasFlag) gin.H {
	flagViews := make([]gin.H, 0, len(flags))
	for _, flag := range flags {
		flagViews = append(flagViews, gin.H{
			"type":               flag.Type,
			"severity":           flag.Severity,
			"description":        flag.Description,
			"mitigation_applied": flag.MitigationApplied,
			"created_at":         flag.CreatedAt,
		})
	}
	return gin.H{
		"job_id":       result.JobID,
		"score":        result.Score,
		"mapped_score": result.MappedScore,
		"risk_tier":    result.RiskTier,
		"confidence":   result.Confidence,
		"traits": gin.H{
			"conscientiousness": result.Traits.Conscientiousness,
			"neuroticism":       result.Traits.Neuroticism,
			"agreeableness":     result.Traits.Agreeableness,
			"openness":          result.Traits.Openness,
			"extraversion":      result.Traits.Extraversion,
		},
		"computed_at": result.ComputedAt,
		"expires_at":  result.ExpiresAt,
		"flags":       flagViews,
	}
}
