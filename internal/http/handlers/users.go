package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/all-in-iam/internal/http/respond"
	"github.com/hongminglow/all-in-iam/internal/models"
	"github.com/hongminglow/all-in-iam/internal/models/dto"
	"github.com/hongminglow/all-in-iam/internal/storage"
	"github.com/hongminglow/all-in-iam/internal/users"
)

// UserService is satisfied by *users.Service.
type UserService interface {
	Create(ctx context.Context, in users.CreateInput) (models.User, error)
	Get(ctx context.Context, id string) (models.User, error)
	List(ctx context.Context, opts storage.FindOptions) ([]models.User, int, error)
}

// maxTake caps the page size accepted from clients.
const maxTake = 100

// UserHandler serves the /users routes.
type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

func NewUserHandler(svc UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{users: svc, logger: logger}
}

// UserPage is the payload of a user listing.
type UserPage struct {
	Items []dto.UserResponse `json:"items"`
	Total int                `json:"total"`
	Skip  int                `json:"skip"`
	Take  int                `json:"take"`
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Failure(w, r, h.logger, err)
		return
	}
	user, err := h.users.Create(r.Context(), users.CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respond.Failure(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "user created successfully", dto.NewUserResponse(&user))
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListQuery(r)
	if err != nil {
		respond.Failure(w, r, h.logger, err)
		return
	}
	list, total, err := h.users.List(r.Context(), opts)
	if err != nil {
		respond.Failure(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "users retrieved successfully", UserPage{
		Items: dto.NewUserResponses(list),
		Total: total,
		Skip:  opts.Skip,
		Take:  opts.Take,
	})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Failure(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "user retrieved successfully", dto.NewUserResponse(&user))
}

func (h *UserHandler) PublicProducts(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, "public access to products", map[string]string{
		"message": "Public product listing available to visitors.",
	})
}

func (h *UserHandler) CreateProduct(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusCreated, "product created", map[string]string{
		"message": "Product created by administrator.",
	})
}

// parseListQuery reads email, name, orderBy, skip and take. orderBy is a
// comma separated list of field[:asc|desc]. take defaults to and is capped at
// maxTake.
func parseListQuery(r *http.Request) (storage.FindOptions, error) {
	q := r.URL.Query()
	var opts storage.FindOptions

	if email := strings.TrimSpace(q.Get("email")); email != "" {
		opts.Filter = append(opts.Filter, storage.Where("email", email))
	}
	if name := strings.TrimSpace(q.Get("name")); name != "" {
		opts.Filter = append(opts.Filter, storage.Condition{Field: "name", Op: storage.OpLike, Value: "%" + name + "%"})
	}

	if raw := strings.TrimSpace(q.Get("orderBy")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			field, dir, _ := strings.Cut(strings.TrimSpace(part), ":")
			direction, ok := storage.ParseDirection(dir)
			if field == "" || !ok {
				return opts, fmt.Errorf("%w: bad orderBy %q", respond.ErrBadRequest, part)
			}
			opts.OrderBy = append(opts.OrderBy, storage.Order{Field: field, Direction: direction})
		}
	} else {
		opts.OrderBy = []storage.Order{{Field: "createdAt", Direction: storage.Asc}}
	}

	var err error
	if opts.Skip, err = intParam(q.Get("skip"), 0); err != nil {
		return opts, err
	}
	if opts.Take, err = intParam(q.Get("take"), maxTake); err != nil {
		return opts, err
	}
	if opts.Take == 0 || opts.Take > maxTake {
		opts.Take = maxTake
	}
	return opts, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", respond.ErrBadRequest, raw)
	}
	return n, nil
}
