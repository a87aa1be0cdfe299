package validators

type CreateProfileRequest struct {
	Name  string `json:"name" validate:"not_blank,max=100"`
	Email string `json:"email" validate:"required,email"`
}

type UpdateContactRequest struct {
	Phone     string `json:"phone" validate:"omitempty,phone_number"`
	PushToken string `json:"pushToken" validate:"omitempty,max=4096"`
}

func ValidateUpdateContact(req *UpdateContactRequest) ValidationErrors {
	errors := ValidateStruct(req)
	if req.Phone == "" && req.PushToken == "" {
		errors = append(errors, ValidationError{
			Field:   "phone",
			Tag:     "required_without",
			Message: "phone or pushToken is required",
		})
	}
	return errors
}
