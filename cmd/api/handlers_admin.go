package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"marketplace/apperr"
	"marketplace/identity"
	"marketplace/user"
	"marketplace/vendorprofile"
)

type userResponse struct {
	ID               string    `json:"id"`
	ExternalID       string    `json:"awsCognitoId,omitempty"`
	Type             user.Type `json:"type"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	PostCode         string    `json:"postCode,omitempty"`
	Country          string    `json:"country,omitempty"`
	City             string    `json:"city,omitempty"`
	IsVerified       bool      `json:"isVerified"`
	VerifiedAt       string    `json:"verifiedAt,omitempty"`
	IsProfileUpdated bool      `json:"isProfileUpdated"`
	Status           string    `json:"status"`
	Remarks          string    `json:"remarks,omitempty"`
	RejectedAt       string    `json:"rejectedAt,omitempty"`
	CreatedAt        string    `json:"createdAt"`
	UpdatedAt        string    `json:"updatedAt"`
}

type profileResponse struct {
	ID                              string `json:"id"`
	UserID                          string `json:"userId"`
	BusinessType                    string `json:"businessType,omitempty"`
	BusinessTypeID                  *int32 `json:"businessTypeId,omitempty"`
	BusinessName                    string `json:"businessName,omitempty"`
	CompanyName                     string `json:"companyName,omitempty"`
	ContactPerson                   string `json:"contactPerson,omitempty"`
	Designation                     string `json:"designation,omitempty"`
	Country                         string `json:"country,omitempty"`
	City                            string `json:"city,omitempty"`
	Website                         string `json:"website,omitempty"`
	BusinessRegistrationCertificate string `json:"businessRegistrationCertificate,omitempty"`
	GSTNumber                       string `json:"gstNumber,omitempty"`
	Address                         string `json:"address,omitempty"`
	CompanyDetails                  string `json:"companyDetails,omitempty"`
	WhatsAppNumber                  string `json:"whatsappNumber,omitempty"`
	Logo                            string `json:"logo,omitempty"`
	WorkingDays                     string `json:"workingDays,omitempty"`
	EmployeeCount                   *int32 `json:"employeeCount,omitempty"`
	PaymentMode                     string `json:"paymentMode,omitempty"`
	Establishment                   *int32 `json:"establishment,omitempty"`
	CreatedAt                       string `json:"createdAt"`
	UpdatedAt                       string `json:"updatedAt"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type statusRequest struct {
	Status  user.Status `json:"status"`
	Remarks string      `json:"remarks"`
}

type verificationUpdateRequest struct {
	IsVerified bool `json:"isVerified"`
}

type createUserRequest struct {
	Type       user.Type   `json:"type"`
	ExternalID string      `json:"awsCognitoId"`
	FirstName  string      `json:"firstName"`
	LastName   string      `json:"lastName"`
	Email      string      `json:"email"`
	Phone      string      `json:"phone"`
	PostCode   string      `json:"postCode"`
	Country    string      `json:"country"`
	City       string      `json:"city"`
	IsVerified bool        `json:"isVerified"`
	Status     user.Status `json:"status"`
}

type updateUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
	PostCode  *string `json:"postCode"`
	Country   *string `json:"country"`
	City      *string `json:"city"`
}

type updateVendorProfileRequest struct {
	BusinessType   *string `json:"businessType"`
	BusinessTypeID *int32  `json:"businessTypeId"`
	BusinessName   *string `json:"businessName"`
	CompanyName    *string `json:"companyName"`
	ContactPerson  *string `json:"contactPerson"`
	Designation    *string `json:"designation"`
	Country        *string `json:"country"`
	City           *string `json:"city"`
	Website        *string `json:"website"`
	GSTNumber      *string `json:"gstNumber"`
	Address        *string `json:"address"`
	CompanyDetails *string `json:"companyDetails"`
	WhatsAppNumber *string `json:"whatsappNumber"`
	WorkingDays    *string `json:"workingDays"`
	EmployeeCount  *int32  `json:"employeeCount"`
	PaymentMode    *string `json:"paymentMode"`
	Establishment  *int32  `json:"establishment"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.userService.Create(r.Context(), user.CreateParams{
		ExternalID: optionalString(req.ExternalID),
		Type:       req.Type,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Phone:      optionalString(identity.NormalizePhone(req.Phone)),
		PostCode:   optionalString(req.PostCode),
		Country:    optionalString(req.Country),
		City:       optionalString(req.City),
		IsVerified: req.IsVerified,
		Status:     req.Status,
		CreatedBy:  actor(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, toUserResponse(u))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Phone != nil {
		phone := identity.NormalizePhone(*req.Phone)
		req.Phone = &phone
	}
	u, err := s.userService.Update(r.Context(), chi.URLParam(r, "id"), user.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		PostCode:  req.PostCode,
		Country:   req.Country,
		City:      req.City,
		UpdatedBy: actor(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.userService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.userService.ListByType(r.Context(), user.Type(r.URL.Query().Get("type")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, toUserList(users))
}

func (s *Server) handleListVendors(w http.ResponseWriter, r *http.Request) {
	users, err := s.userService.ListVendors(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, toUserList(users))
}

func (s *Server) handleUpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.userService.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, actor(r.Context()), req.Remarks)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleUpdateUserVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.userService.UpdateVerification(r.Context(), chi.URLParam(r, "id"), req.IsVerified, actor(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.userService.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, messageResponse{Message: "User deleted"})
}

func (s *Server) handleGetUserVendorProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profileService.GetByUserID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, toProfileResponse(p))
}

func (s *Server) handleGetVendorProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profileService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, toProfileResponse(p))
}

func (s *Server) handleUpdateVendorProfile(w http.ResponseWriter, r *http.Request) {
	var req updateVendorProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.profileService.Update(r.Context(), chi.URLParam(r, "id"), vendorprofile.Business(req), actor(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, toProfileResponse(p))
}

func (s *Server) handleDeleteVendorProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.profileService.Remove(r.Context(), chi.URLParam(r, "id"), actor(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, messageResponse{Message: "Vendor profile deleted"})
}

// handleUpdateVendorProfileFiles replaces the logo and/or certificate.
func (s *Server) handleUpdateVendorProfileFiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	current, err := s.profileService.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindInvalidFormat, "Invalid multipart form", err))
		return
	}

	var logo, certificate *string
	var stored []string
	for _, field := range []string{"logo", "certificate"} {
		url, err := s.storeFormFile(r, field, current.UserID)
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
			logo = &url
		} else {
			certificate = &url
		}
	}

	updated, err := s.profileService.UpdateFiles(r.Context(), id, logo, certificate, actor(r.Context()))
	if err != nil {
		s.cleanupFiles(r.Context(), stored)
		s.writeError(w, r, err)
		return
	}

	// The replaced objects are no longer referenced.
	var replaced []string
	if logo != nil && current.Logo != nil {
		replaced = append(replaced, *current.Logo)
	}
	if certificate != nil && current.BusinessRegistrationCertificate != nil {
		replaced = append(replaced, *current.BusinessRegistrationCertificate)
	}
	s.cleanupFiles(r.Context(), replaced)

	writeData(w, r, http.StatusOK, toProfileResponse(updated))
}

func toUserResponse(u user.User) userResponse {
	return userResponse{
		ID:               u.ID,
		ExternalID:       deref(u.ExternalID),
		Type:             u.Type,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Email:            u.Email,
		Phone:            deref(u.Phone),
		PostCode:         deref(u.PostCode),
		Country:          deref(u.Country),
		City:             deref(u.City),
		IsVerified:       u.IsVerified,
		VerifiedAt:       formatTime(u.VerifiedAt),
		IsProfileUpdated: u.IsProfileUpdated,
		Status:           string(u.Status),
		Remarks:          deref(u.Remarks),
		RejectedAt:       formatTime(u.RejectedAt),
		CreatedAt:        u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toUserList(users []user.User) listResponse[userResponse] {
	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, toUserResponse(u))
	}
	return listResponse[userResponse]{Items: items, Total: len(items)}
}

func toProfileResponse(p vendorprofile.Profile) profileResponse {
	return profileResponse{
		ID:                              p.ID,
		UserID:                          p.UserID,
		BusinessType:                    deref(p.BusinessType),
		BusinessTypeID:                  p.BusinessTypeID,
		BusinessName:                    deref(p.BusinessName),
		CompanyName:                     deref(p.CompanyName),
		ContactPerson:                   deref(p.ContactPerson),
		Designation:                     deref(p.Designation),
		Country:                         deref(p.Country),
		City:                            deref(p.City),
		Website:                         deref(p.Website),
		BusinessRegistrationCertificate: deref(p.BusinessRegistrationCertificate),
		GSTNumber:                       deref(p.GSTNumber),
		Address:                         deref(p.Address),
		CompanyDetails:                  deref(p.CompanyDetails),
		WhatsAppNumber:                  deref(p.WhatsAppNumber),
		Logo:                            deref(p.Logo),
		WorkingDays:                     deref(p.WorkingDays),
		EmployeeCount:                   p.EmployeeCount,
		PaymentMode:                     deref(p.PaymentMode),
		Establishment:                   p.Establishment,
		CreatedAt:                       p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:                       p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
