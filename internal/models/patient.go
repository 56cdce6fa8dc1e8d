package models

import "time"

type Patient struct {
	PatientID              int64      `json:"patient_id"`
	FirstName              string     `json:"first_name"`
	LastName               string     `json:"last_name"`
	PhoneNumber            *string    `json:"phone_number"`
	DateOfBirth            *time.Time `json:"date_of_birth"`
	Gender                 *string    `json:"gender"`
	Address                *string    `json:"address"`
	BloodGroup             *string    `json:"blood_group"`
	RFIDTag                *string    `json:"rfid_tag"`
	PreferredLanguage      *string    `json:"preferred_language"`
	DoctorID               *int64     `json:"doctor_id"`
	PatientType            *string    `json:"patient_type"`
	IsActive               bool       `json:"is_active"`
	EmergencyContactName   *string    `json:"emergency_contact_name"`
	EmergencyContactNumber *string    `json:"emergency_contact_number"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"-"`
	DeletedAt              *time.Time `json:"-"`
}

func (p Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}
