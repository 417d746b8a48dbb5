package model

type EmergencyRequest struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}
