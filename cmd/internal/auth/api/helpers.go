package authapi

import (
	"net"
	"net/http"
	"strings"

	"idreg/cmd/identity"
)

const birthDateLayout = "2006-01-02"

func toUserResponse(u identity.PublicIdentity) userResponse {
	out := userResponse{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		PhoneNumber:    u.PhoneNumber,
		FirstName:      u.Profile.FirstName,
		LastName:       u.Profile.LastName,
		ProfilePicture: u.Profile.ProfilePicture,
		CoverPicture:   u.Profile.CoverPicture,
		Gender:         u.Profile.Gender,
		Bio:            u.Profile.Bio,
		IsActive:       u.IsActive,
		DeletedAt:      u.DeletedAt,
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
	if u.Profile.BirthDate != nil {
		d := u.Profile.BirthDate.Format(birthDateLayout)
		out.BirthDate = &d
	}
	return out
}

func toSessionResponse(s identity.PublicSession) sessionResponse {
	return sessionResponse{ID: s.ID, Username: s.Username, Email: s.Email}
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
