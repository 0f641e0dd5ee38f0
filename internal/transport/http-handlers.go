package transport

import (
	"context"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/models"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/service"
)

func (s *HTTPServer) UserCreate(c echo.Context) error {
	req := models.UserReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	p, err := s.users.Create(c.Request().Context(), service.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, models.NewUserResp(p, true))
}

// Login exchanges an identity-provider id token for a local user and a fresh session.
func (s *HTTPServer) Login(c echo.Context) error {
	req := models.LoginReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	claims, err := s.verifier.Verify(req.Token)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	user, created, err := s.users.LoginWithIdentity(ctx, claims.DisplayName(), claims.Email)
	if err != nil {
		return err
	}
	p, err := s.users.Get(ctx, user.ID)
	if err != nil {
		return err
	}
	p.User.Credential = user.Credential

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return c.JSON(code, models.NewUserResp(p, true))
}

func (s *HTTPServer) LoginPassword(c echo.Context) error {
	req := models.PasswordLoginReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	user, err := s.users.LoginWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	p, err := s.users.Get(ctx, user.ID)
	if err != nil {
		return err
	}
	p.User.Credential = user.Credential
	return c.JSON(http.StatusOK, models.NewUserResp(p, true))
}

// SessionRenew takes the update token from the body or, failing that, the Authorization header.
func (s *HTTPServer) SessionRenew(c echo.Context) error {
	req := models.RenewReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	token := req.UpdateToken
	if token == "" {
		token = requestToken(c.Request())
	}

	user, err := s.sessions.Renew(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewSessionResp(user))
}

func (s *HTTPServer) UserGet(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	p, err := s.users.Get(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewUserResp(p, false))
}

func (s *HTTPServer) UserDelete(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	p, err := s.users.Delete(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewUserResp(p, false))
}

func (s *HTTPServer) UserNumber(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := models.NumberReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	p, err := s.users.SetPhoneNumber(c.Request().Context(), user.ID, req.Number)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewUserResp(p, false))
}

func (s *HTTPServer) memberAdd(rel service.Relation, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return s.member(c, rel, param, s.ledger.AddMember)
	}
}

func (s *HTTPServer) memberRemove(rel service.Relation, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return s.member(c, rel, param, s.ledger.RemoveMember)
	}
}

type (
	memberOp   func(ctx context.Context, userID, targetID uint64, rel service.Relation) (*service.Profile, error)
	categoryOp func(ctx context.Context, eventID, categoryID uint64) (*db.Event, error)
)

func (s *HTTPServer) member(c echo.Context, rel service.Relation, param string, op memberOp) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	targetID, err := GetAndParseParam(c, param)
	if err != nil {
		return err
	}

	p, err := op(c.Request().Context(), user.ID, targetID, rel)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewUserResp(p, false))
}

func (s *HTTPServer) memberEvents(rel service.Relation) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := GetUserFromContext(c)
		if err != nil {
			return err
		}

		events, err := s.ledger.Events(c.Request().Context(), user.ID, rel)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, models.NewEventResps(events))
	}
}

func (s *HTTPServer) memberBuckets(rel service.Relation) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := GetUserFromContext(c)
		if err != nil {
			return err
		}

		buckets, err := s.ledger.Buckets(c.Request().Context(), user.ID, rel)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, models.NewBucketResps(buckets))
	}
}

func (s *HTTPServer) EventCreate(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := models.EventReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	event, err := s.catalog.CreateEvent(c.Request().Context(), user.ID, service.CreateEventInput{
		Title:       req.Title,
		HostName:    req.HostName,
		Date:        req.Date,
		Location:    req.Location,
		Description: req.Description,
		Categories:  req.Categories,
		Image:       req.Image,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, models.NewEventResp(event))
}

func (s *HTTPServer) EventDelete(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "event_id")
	if err != nil {
		return err
	}

	event, err := s.catalog.DeleteEvent(c.Request().Context(), user.ID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewEventResp(event))
}

func (s *HTTPServer) EventList(c echo.Context) error {
	events, err := s.catalog.ListEvents(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewEventResps(events))
}

func (s *HTTPServer) EventGet(c echo.Context) error {
	id, err := GetAndParseParam(c, "event_id")
	if err != nil {
		return err
	}

	event, err := s.catalog.GetEvent(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewEventResp(event))
}

func (s *HTTPServer) EventSearch(c echo.Context) error {
	raw, err := GetParam(c, "term")
	if err != nil {
		return err
	}
	term, err := url.PathUnescape(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path param 'term'")
	}

	events, err := s.catalog.SearchEvents(c.Request().Context(), term)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewEventResps(events))
}

func (s *HTTPServer) RandomItem(c echo.Context) error {
	item, err := s.catalog.RandomItem(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewItemResp(item))
}

func (s *HTTPServer) BucketCreate(c echo.Context) error {
	req := models.BucketReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	bucket, err := s.catalog.CreateBucket(c.Request().Context(), req.Description)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, models.NewBucketResp(bucket))
}

func (s *HTTPServer) BucketList(c echo.Context) error {
	buckets, err := s.catalog.ListBuckets(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewBucketResps(buckets))
}

func (s *HTTPServer) BucketGet(c echo.Context) error {
	id, err := GetAndParseParam(c, "bucket_id")
	if err != nil {
		return err
	}

	bucket, err := s.catalog.GetBucket(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewBucketResp(bucket))
}

func (s *HTTPServer) BucketUpdate(c echo.Context) error {
	id, err := GetAndParseParam(c, "bucket_id")
	if err != nil {
		return err
	}

	req := models.BucketUpdateReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	bucket, err := s.catalog.UpdateBucket(c.Request().Context(), id, service.UpdateBucketInput{
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewBucketResp(bucket))
}

func (s *HTTPServer) BucketDelete(c echo.Context) error {
	id, err := GetAndParseParam(c, "bucket_id")
	if err != nil {
		return err
	}

	bucket, err := s.catalog.DeleteBucket(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewBucketResp(bucket))
}

func (s *HTTPServer) CategoryCreate(c echo.Context) error {
	req := models.CategoryReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	category, err := s.catalog.CreateCategory(c.Request().Context(), req.Description, req.Color)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, models.NewCategoryResp(category))
}

func (s *HTTPServer) CategoryList(c echo.Context) error {
	categories, err := s.catalog.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewCategoryResps(categories))
}

func (s *HTTPServer) CategoryGet(c echo.Context) error {
	id, err := GetAndParseParam(c, "category_id")
	if err != nil {
		return err
	}

	category, err := s.catalog.GetCategory(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewCategoryResp(category))
}

func (s *HTTPServer) CategoryEvents(c echo.Context) error {
	id, err := GetAndParseParam(c, "category_id")
	if err != nil {
		return err
	}

	events, err := s.catalog.CategoryEvents(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewEventResps(events))
}

func (s *HTTPServer) CategoryDelete(c echo.Context) error {
	id, err := GetAndParseParam(c, "category_id")
	if err != nil {
		return err
	}

	category, err := s.catalog.DeleteCategory(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewCategoryResp(category))
}

func (s *HTTPServer) CategoryAssign(c echo.Context) error {
	return s.categoryLink(c, s.catalog.AssignCategory)
}

func (s *HTTPServer) CategoryUnassign(c echo.Context) error {
	return s.categoryLink(c, s.catalog.UnassignCategory)
}

func (s *HTTPServer) categoryLink(c echo.Context, op categoryOp) error {
	eventID, err := GetAndParseParam(c, "event_id")
	if err != nil {
		return err
	}
	categoryID, err := GetAndParseParam(c, "category_id")
	if err != nil {
		return err
	}

	event, err := op(c.Request().Context(), eventID, categoryID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewEventResp(event))
}
