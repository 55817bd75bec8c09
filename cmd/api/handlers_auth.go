package main

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/auth"
	"marketplace/filestore"
	"marketplace/user"
)

const maxUploadMemory = 10 << 20

type verificationRequest struct {
	EmailOrPhone       string      `json:"emailOrPhone"`
	VerificationCode   string      `json:"verificationCode"`
	VerificationMethod auth.Method `json:"verificationMethod"`
}

type completeSignInRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
	Code         string `json:"code"`
	Session      string `json:"session"`
}

type adminSignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type confirmForgotPasswordRequest struct {
	Email            string `json:"email"`
	ConfirmationCode string `json:"confirmationCode"`
	NewPassword      string `json:"newPassword"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req auth.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.authService.SignUp(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, res)
}

func (s *Server) handleSendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.authService.SendVerificationCode(r.Context(), req.EmailOrPhone, req.VerificationMethod)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.authService.VerifyCode(r.Context(), req.EmailOrPhone, req.VerificationCode, req.VerificationMethod)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.authService.SignIn(r.Context(), req.EmailOrPhone, req.VerificationMethod)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (s *Server) handleCompleteSignIn(w http.ResponseWriter, r *http.Request) {
	var req completeSignInRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.authService.CompleteSignIn(r.Context(), req.EmailOrPhone, req.Code, req.Session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (s *Server) handleAdminSignIn(w http.ResponseWriter, r *http.Request) {
	var req adminSignInRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.authService.AdminSignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (s *Server) handleAdminForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req adminSignInRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.authService.AdminForgotPassword(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func (s *Server) handleAdminConfirmForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req confirmForgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.authService.AdminConfirmForgotPassword(r.Context(), req.Email, req.ConfirmationCode, req.NewPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, messageResponse{Message: "Password has been reset"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		s.writeError(w, r, apperr.Unauthorized("Missing bearer token"))
		return
	}
	writeData(w, r, http.StatusOK, toUserResponse(p.User))
}

// handleVendorOnboarding stores the optional logo and certificate first, then
// onboards. Files stored for a failed onboarding are removed again.
func (s *Server) handleVendorOnboarding(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.writeError(w, r, apperr.Wrap(apperr.KindInvalidFormat, "Invalid multipart form", err))
		return
	}
	req, err := onboardingFromForm(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	owner := req.ExternalID
	var files auth.OnboardingFiles
	var stored []string
	for _, field := range []string{"logo", "certificate"} {
		url, err := s.storeFormFile(r, field, owner)
		if err != nil {
			s.cleanupFiles(r.Context(), stored)
			s.writeError(w, r, err)
			return
		}
		if url == "" {
			continue
		}
		stored = append(stored, url)
		if field == "logo" {
			files.LogoURL = url
		} else {
			files.CertificateURL = url
		}
	}

	res, err := s.authService.OnboardVendor(r.Context(), req, files)
	if err != nil {
		s.cleanupFiles(r.Context(), stored)
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, res)
}

// storeFormFile uploads the file in form field, if any, and returns its URL.
func (s *Server) storeFormFile(r *http.Request, field, owner string) (string, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return "", nil
	}
	if s.files == nil {
		return "", apperr.InvalidRequest("File uploads are not configured").WithField(field, "")
	}
	header := r.MultipartForm.File[field][0]
	return s.putUpload(r.Context(), header, field, owner)
}

func (s *Server) putUpload(ctx context.Context, header *multipart.FileHeader, field, owner string) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidFormat, "Unreadable file", err).WithField(field, header.Filename)
	}
	defer f.Close()

	url, err := s.files.Put(ctx, filestore.Object{
		Field:       field,
		Owner:       owner,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        f,
	})
	if err != nil {
		return "", fmt.Errorf("store %s: %w", field, err)
	}
	return url, nil
}

func (s *Server) cleanupFiles(ctx context.Context, urls []string) {
	for _, url := range urls {
		if err := s.files.Delete(context.WithoutCancel(ctx), url); err != nil {
			s.logger.Warn("orphaned upload", zap.String("url", url), zap.Error(err))
		}
	}
}

func onboardingFromForm(r *http.Request) (auth.OnboardingRequest, error) {
	form := func(key string) string { return strings.TrimSpace(r.FormValue(key)) }
	opt := func(key string) *string {
		if v := form(key); v != "" {
			return &v
		}
		return nil
	}

	req := auth.OnboardingRequest{
		FirstName:  form("first_name"),
		LastName:   form("last_name"),
		Email:      form("email"),
		Phone:      form("phone"),
		Type:       user.Type(form("type")),
		ExternalID: form("aws_cognito_id"),
		PostCode:   form("post_code"),
		Country:    form("country"),
		City:       form("city"),
	}
	req.Business.BusinessType = opt("business_type")
	req.Business.BusinessName = opt("business_name")
	req.Business.CompanyName = opt("company_name")
	req.Business.ContactPerson = opt("contact_person")
	req.Business.Designation = opt("designation")
	req.Business.Website = opt("website")
	req.Business.GSTNumber = opt("gst_number")
	req.Business.Address = opt("address")
	req.Business.CompanyDetails = opt("company_details")
	req.Business.WhatsAppNumber = opt("whatsapp_number")
	req.Business.WorkingDays = opt("working_days")
	req.Business.PaymentMode = opt("payment_mode")

	var err error
	if req.IsVerified, err = formBool(form("is_verified"), "is_verified"); err != nil {
		return req, err
	}
	if req.IsProfileUpdated, err = formBool(form("is_profile_updated"), "is_profile_updated"); err != nil {
		return req, err
	}
	if v := form("verified_at"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, apperr.Wrap(apperr.KindInvalidFormat, "Invalid verification timestamp", err).WithField("verified_at", v)
		}
		req.VerifiedAt = &at
	}
	for key, dst := range map[string]**int32{
		"business_type_id": &req.Business.BusinessTypeID,
		"employee_count":   &req.Business.EmployeeCount,
		"establishment":    &req.Business.Establishment,
	} {
		v := form(key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return req, apperr.Wrap(apperr.KindInvalidFormat, "Invalid number", err).WithField(key, v)
		}
		n32 := int32(n)
		*dst = &n32
	}
	return req, nil
}

func formBool(v, field string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInvalidFormat, "Invalid boolean", err).WithField(field, v)
	}
	return b, nil
}
