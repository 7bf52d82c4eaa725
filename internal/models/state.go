package models

// UserState keeps the multi-step conversation position for one chat user.
type UserState struct {
	UserID      int64
	CurrentStep string
	TempData    map[string]interface{}
}

func (s *UserState) GetString(key string) string {
	if s == nil || s.TempData == nil {
		return ""
	}
	val, ok := s.TempData[key]
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func (s *UserState) GetInt(key string) int {
	if s == nil || s.TempData == nil {
		return 0
	}
	val, ok := s.TempData[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
