package dto

// SettingItem represents a setting exposed via API.
type SettingItem struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Default     string `json:"default"`
	Description string `json:"description"`
}

// UpdateSettingRequest describes payload for updating a single setting.
type UpdateSettingRequest struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// BulkUpdateSettingRequest holds multiple update requests.
type BulkUpdateSettingRequest struct {
	Items []UpdateSettingRequest `json:"items" validate:"required,min=1,dive"`
}

// RegistrationPreview shows the next registration number without allocating it.
type RegistrationPreview struct {
	Prefix string `json:"prefix"`
	Year   int    `json:"year"`
	Next   string `json:"next"`
}
