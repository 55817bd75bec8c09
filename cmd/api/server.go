package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"marketplace/auth"
	"marketplace/filestore"
	"marketplace/user"
	"marketplace/vendorprofile"
)

type authService interface {
	SignUp(ctx context.Context, req auth.SignUpRequest) (auth.SignUpResult, error)
	SendVerificationCode(ctx context.Context, identifier string, method auth.Method) (auth.CodeSent, error)
	VerifyCode(ctx context.Context, identifier, code string, method auth.Method) (auth.VerifyResult, error)
	SignIn(ctx context.Context, identifier string, method auth.Method) (auth.SignInChallenge, error)
	CompleteSignIn(ctx context.Context, identifier, code, session string) (auth.SignInResult, error)
	AdminSignIn(ctx context.Context, email, password string) (auth.SignInResult, error)
	AdminForgotPassword(ctx context.Context, email string) (auth.PasswordResetStarted, error)
	AdminConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error
	OnboardVendor(ctx context.Context, req auth.OnboardingRequest, files auth.OnboardingFiles) (auth.OnboardingResult, error)
	Authenticate(ctx context.Context, bearer string) (auth.Principal, error)
}

type userService interface {
	Create(ctx context.Context, params user.CreateParams) (user.User, error)
	Get(ctx context.Context, id string) (user.User, error)
	ListByType(ctx context.Context, t user.Type) ([]user.User, error)
	ListVendors(ctx context.Context) ([]user.User, error)
	UpdateStatus(ctx context.Context, id string, status user.Status, updatedBy, remarks string) (user.User, error)
	UpdateVerification(ctx context.Context, id string, verified bool, updatedBy string) (user.User, error)
	Update(ctx context.Context, id string, upd user.ProfileUpdate) (user.User, error)
	Remove(ctx context.Context, id string) error
}

type profileService interface {
	Get(ctx context.Context, id string) (vendorprofile.Profile, error)
	GetByUserID(ctx context.Context, userID string) (vendorprofile.Profile, error)
	Update(ctx context.Context, id string, b vendorprofile.Business, updatedBy string) (vendorprofile.Profile, error)
	UpdateFiles(ctx context.Context, id string, logo, certificate *string, updatedBy string) (vendorprofile.Profile, error)
	Remove(ctx context.Context, id, removedBy string) error
}

type fileStore interface {
	Put(ctx context.Context, obj filestore.Object) (string, error)
	Delete(ctx context.Context, url string) error
}

// Server holds the HTTP dependencies.
type Server struct {
	authService    authService
	userService    userService
	profileService profileService
	files          fileStore
	logger         *zap.Logger
	now            func() time.Time
}

type serverOptions struct {
	corsOrigins    []string
	requestTimeout time.Duration
}

func newServer(a authService, u userService, p profileService, files fileStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		authService:    a,
		userService:    u,
		profileService: p,
		files:          files,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *Server) routes(opts serverOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if opts.requestTimeout > 0 {
		r.Use(middleware.Timeout(opts.requestTimeout))
	}
	origins := opts.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(a chi.Router) {
			a.Post("/sign-up", s.handleSignUp)
			a.Post("/send-verification-code", s.handleSendVerificationCode)
			a.Post("/resend-code", s.handleSendVerificationCode)
			a.Post("/verify-code", s.handleVerifyCode)
			a.Post("/sign-in", s.handleSignIn)
			a.Post("/complete-sign-in", s.handleCompleteSignIn)
			a.Post("/admin/sign-in", s.handleAdminSignIn)
			a.Post("/admin/forgot-password", s.handleAdminForgotPassword)
			a.Post("/admin/confirm-forgot-password", s.handleAdminConfirmForgotPassword)
			a.Post("/vendor-onboarding", s.handleVendorOnboarding)
			a.With(s.requireAuth).Get("/me", s.handleMe)
		})

		api.Group(func(admin chi.Router) {
			admin.Use(s.requireAuth, s.requireAdmin)

			admin.Post("/users", s.handleCreateUser)
			admin.Get("/users", s.handleListUsers)
			admin.Get("/users/vendors", s.handleListVendors)
			admin.Get("/users/{id}", s.handleGetUser)
			admin.Patch("/users/{id}", s.handleUpdateUser)
			admin.Patch("/users/{id}/status", s.handleUpdateUserStatus)
			admin.Patch("/users/{id}/verification", s.handleUpdateUserVerification)
			admin.Delete("/users/{id}", s.handleDeleteUser)
			admin.Get("/users/{id}/vendor-profile", s.handleGetUserVendorProfile)

			admin.Get("/vendor-profiles/{id}", s.handleGetVendorProfile)
			admin.Patch("/vendor-profiles/{id}", s.handleUpdateVendorProfile)
			admin.Patch("/vendor-profiles/{id}/files", s.handleUpdateVendorProfileFiles)
			admin.Delete("/vendor-profiles/{id}", s.handleDeleteVendorProfile)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
