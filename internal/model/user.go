package model

// UserProfile is the directory answer for one user.
type UserProfile struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	EmailConsent *bool  `json:"emailConsent"`
	PhoneNumber  string `json:"phoneNumber"`
	SMSConsent   *bool  `json:"smsConsent"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Username     string `json:"username"`
}

// AllowsSMS is true only for an explicit consent.
func (u *UserProfile) AllowsSMS() bool {
	return u.SMSConsent != nil && *u.SMSConsent
}

// AllowsEmail is true only for an explicit consent.
func (u *UserProfile) AllowsEmail() bool {
	return u.EmailConsent != nil && *u.EmailConsent
}
