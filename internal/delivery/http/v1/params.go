package v1

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dftm/dftm-calendar/internal/models"
)

// requestLanguage picks the lang query parameter, then the first
// supported Accept-Language tag, then the fallback language.
func (h *handlerImpl) requestLanguage(c *gin.Context) models.Language {
	if lang, ok := models.ParseLanguage(c.Query("lang")); ok {
		return lang
	}
	for _, part := range strings.Split(c.GetHeader("Accept-Language"), ",") {
		tag, _, _ := strings.Cut(part, ";")
		if lang, ok := models.ParseLanguage(tag); ok {
			return lang
		}
	}
	return h.translator.Fallback()
}

// requestLocation is the viewer's calendar, named by the tz query parameter.
func (h *handlerImpl) requestLocation(c *gin.Context) (*time.Location, error) {
	tz := c.Query("tz")
	if tz == "" {
		return h.location, nil
	}
	return time.LoadLocation(tz)
}

func queryBool(c *gin.Context, key string, def bool) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

func queryUint32(c *gin.Context, key string) (uint32, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	return uint32(v), err
}
