package server

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"

	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const identityKey = "identity"

// authMiddleware resolves the bearer token into the acting identity
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.abort(c, errors.Unauthorized.Explain("missing bearer token"))
			return
		}

		identity, err := s.svc.Identities.ValidateToken(token)
		if err != nil {
			s.abort(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// require rejects callers whose role lacks capability
func (s *Server) require(capability models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := currentIdentity(c)
		if !identity.Role.Can(capability) {
			s.abort(c, errors.Forbidden.
				Explain("role %s cannot %s", identity.Role, capability).
				WithDetail("capability", capability.String()))
			return
		}
		c.Next()
	}
}

func currentIdentity(c *gin.Context) models.Identity {
	v, _ := c.Get(identityKey)
	identity, _ := v.(models.Identity)
	return identity
}

func (s *Server) abort(c *gin.Context, err error) {
	s.writeError(c, err)
	c.Abort()
}

// writeError renders err as RFC 7807 problem details
func (s *Server) writeError(c *gin.Context, err error) {
	problem := errors.FromError(err, c.Request.URL.Path)
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		problem.WithTraceID(sc.TraceID().String())
	}

	if problem.Status >= 500 {
		s.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	body, mErr := json.Marshal(problem)
	if mErr != nil {
		c.Status(problem.Status)
		return
	}
	c.Data(problem.Status, "application/problem+json", body)
}

// bindError converts binding failures into field-level validation errors
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.ValidationFailed.Explain("malformed request body").Wrap(err)
	}

	out := errors.ValidationFailed.Explain("invalid request")
	for _, fe := range verrs {
		out = out.WithField(fe.Tag(), fe.Field(), fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a UUID"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func parseID(c *gin.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, errors.ValidationFailed.WithField("uuid", param, "must be a UUID")
	}
	return id, nil
}

var registerOnce sync.Once

// registerJSONFieldNames makes validation errors report JSON field names
func registerJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}
