package middleware

import (
	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

// LanguageKey is the gin context key of the negotiated response language
const LanguageKey = "language"

// Language negotiates the language of history labels from Accept-Language.
// Requests without a usable header get fallback.
func Language(fallback language.Tag) gin.HandlerFunc {
	return func(c *gin.Context) {
		tag := fallback
		if header := c.GetHeader("Accept-Language"); header != "" {
			if preferred, _, err := language.ParseAcceptLanguage(header); err == nil && len(preferred) > 0 {
				if matched, ok := fundrequest.MatchLanguage(preferred...); ok {
					tag = matched
				}
			}
		}
		c.Set(LanguageKey, tag)
		c.Header("Content-Language", tag.String())
		c.Next()
	}
}

// GetLanguage returns the negotiated language, or the workflow default
func GetLanguage(c *gin.Context) language.Tag {
	if v, ok := c.Get(LanguageKey); ok {
		if tag, ok := v.(language.Tag); ok {
			return tag
		}
	}
	return fundrequest.DefaultLanguage
}
