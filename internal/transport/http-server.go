package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/identity"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/models"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/service"
)

const (
	censored   = "$censored"
	userCtxKey = "user"
)

// body fields that never reach the logs
var censoredFields = map[string]struct{}{
	"password":      {},
	"token":         {},
	"session_token": {},
	"update_token":  {},
	"image":         {},
}

type (
	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		e        *echo.Echo
		users    *service.Users
		sessions *service.Sessions
		ledger   *service.Ledger
		catalog  *service.Catalog
		verifier *identity.Verifier
		logger   *zap.SugaredLogger
	}
)

func NewHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	users *service.Users,
	sessions *service.Sessions,
	ledger *service.Ledger,
	catalog *service.Catalog,
	verifier *identity.Verifier,
	logger *zap.SugaredLogger,
) *HTTPServer {
	instance := newHTTPServer(users, sessions, ledger, catalog, verifier, logger)
	e := instance.e

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				logger.Infow("starting HTTP server", "listen", listen)
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					logger.Fatalw("shutting down the server", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return e.Shutdown(ctx)
		},
	})

	return instance
}

func newHTTPServer(
	users *service.Users,
	sessions *service.Sessions,
	ledger *service.Ledger,
	catalog *service.Catalog,
	verifier *identity.Verifier,
	logger *zap.SugaredLogger,
) *HTTPServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	instance := HTTPServer{
		e:        e,
		users:    users,
		sessions: sessions,
		ledger:   ledger,
		catalog:  catalog,
		verifier: verifier,
		logger:   logger,
	}

	e.Pre(middleware.AddTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		Skipper: func(c echo.Context) bool { return c.Request().URL.Path == "/ping" },
	}))
	e.Use(middleware.CORS())
	e.Use(instance.requestLogger())
	e.Use(instance.bodyLogger())
	e.Use(middleware.Recover())

	e.Validator = &CustomValidator{validator: validator.New()}
	e.HTTPErrorHandler = instance.errorHandler

	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	api := e.Group("/api")
	api.POST("/users/", instance.UserCreate)
	api.POST("/login/", instance.Login)
	api.POST("/login/password/", instance.LoginPassword)
	api.POST("/session/", instance.SessionRenew)

	eventG := api.Group("/events")
	eventG.GET("/", instance.EventList)
	eventG.GET("/random/", instance.RandomItem)
	eventG.GET("/search/:term/", instance.EventSearch)
	eventG.GET("/:event_id/", instance.EventGet)
	eventG.POST("/:event_id/categories/:category_id/", instance.CategoryAssign)
	eventG.DELETE("/:event_id/categories/:category_id/", instance.CategoryUnassign)

	bucketG := api.Group("/buckets")
	bucketG.POST("/", instance.BucketCreate)
	bucketG.GET("/", instance.BucketList)
	bucketG.GET("/:bucket_id/", instance.BucketGet)
	bucketG.PATCH("/:bucket_id/", instance.BucketUpdate)
	bucketG.DELETE("/:bucket_id/", instance.BucketDelete)

	categoryG := api.Group("/categories")
	categoryG.POST("/", instance.CategoryCreate)
	categoryG.GET("/", instance.CategoryList)
	categoryG.GET("/:category_id/", instance.CategoryGet)
	categoryG.GET("/:category_id/events/", instance.CategoryEvents)
	categoryG.DELETE("/:category_id/", instance.CategoryDelete)

	userG := api.Group("/users/:user_id", instance.AuthMiddleware)
	userG.GET("/", instance.UserGet)
	userG.DELETE("/", instance.UserDelete)
	userG.POST("/number/", instance.UserNumber)
	userG.POST("/events/", instance.EventCreate)
	userG.GET("/events/created/", instance.memberEvents(service.RelationCreatedEvent))
	userG.GET("/events/bookmark/", instance.memberEvents(service.RelationSavedEvent))
	userG.DELETE("/events/:event_id/", instance.EventDelete)
	userG.POST("/events/:event_id/bookmark/", instance.memberAdd(service.RelationSavedEvent, "event_id"))
	userG.DELETE("/events/:event_id/bookmark/", instance.memberRemove(service.RelationSavedEvent, "event_id"))
	userG.GET("/buckets/", instance.memberBuckets(service.RelationCompletedBucket))
	userG.GET("/buckets/bookmark/", instance.memberBuckets(service.RelationSavedBucket))
	userG.POST("/buckets/:bucket_id/bookmark/", instance.memberAdd(service.RelationSavedBucket, "bucket_id"))
	userG.DELETE("/buckets/:bucket_id/bookmark/", instance.memberRemove(service.RelationSavedBucket, "bucket_id"))
	userG.POST("/buckets/:bucket_id/completed/", instance.memberAdd(service.RelationCompletedBucket, "bucket_id"))
	userG.DELETE("/buckets/:bucket_id/completed/", instance.memberRemove(service.RelationCompletedBucket, "bucket_id"))

	return &instance
}

func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// AuthMiddleware resolves the session token and only lets the owner of :user_id through.
func (s *HTTPServer) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := requestToken(c.Request())
		if token == "" {
			return errors.Wrap(service.ErrInvalidToken, "missing session token")
		}

		user, err := s.sessions.Authenticate(c.Request().Context(), token)
		if err != nil {
			return err
		}

		id, err := GetAndParseParam(c, "user_id")
		if err != nil {
			return err
		}
		if user.ID != id {
			return errors.Wrapf(service.ErrForbidden, "session does not belong to user %d", id)
		}

		c.Set(userCtxKey, user)
		return next(c)
	}
}

// requestToken reads "Authorization: Bearer <token>" and falls back to x-token.
func requestToken(r *http.Request) string {
	if auth := r.Header.Get(echo.HeaderAuthorization); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("x-token"))
}

func (s *HTTPServer) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Errorw("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, models.ErrorResp{Error: msg})
	}
	if err != nil {
		s.logger.Errorw("failed to write error response", "error", err)
	}
}

func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, service.ErrStorage):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, identity.ErrNotConfigured):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func (s *HTTPServer) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			s.logger.Infow("request", fields...)
			return nil
		},
	})
}

func (s *HTTPServer) bodyLogger() echo.MiddlewareFunc {
	return middleware.BodyDumpWithConfig(middleware.BodyDumpConfig{
		Skipper: func(c echo.Context) bool {
			return !s.logger.Desugar().Core().Enabled(zapcore.DebugLevel)
		},
		Handler: func(c echo.Context, reqBody, resBody []byte) {
			s.logger.Debugw("body",
				"path", c.Path(),
				"request", string(censorBody(reqBody)),
				"response", string(censorBody(resBody)),
			)
		},
	})
}

// censorBody blanks secret fields of a JSON body at any depth. Non-JSON bodies pass through.
func censorBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return body
	}

	out, err := json.Marshal(censorValue(v))
	if err != nil {
		return body
	}
	return out
}

func censorValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for key, value := range t {
			if _, ok := censoredFields[strings.ToLower(key)]; ok {
				t[key] = censored
				continue
			}
			t[key] = censorValue(value)
		}
		return t
	case []interface{}:
		for i := range t {
			t[i] = censorValue(t[i])
		}
		return t
	default:
		return v
	}
}

////////

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return nil
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err = c.Validate(v); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return echo.NewHTTPError(http.StatusBadRequest, he.Message)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func GetUserFromContext(c echo.Context) (*db.User, error) {
	user, ok := c.Get(userCtxKey).(*db.User)
	if !ok || user == nil {
		return nil, errors.New("no user found in context")
	}
	return user, nil
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return value, nil
}

func GetAndParseParam(c echo.Context, name string) (uint64, error) {
	v, e := GetParam(c, name)
	if e != nil {
		return 0, e
	}
	vv, e := strconv.ParseUint(v, 10, 64)
	if e != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return vv, nil
}
