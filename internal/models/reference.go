package models

type Department struct {
	DepartmentID       int64  `json:"department_id"`
	DepartmentCode     string `json:"department_code"`
	DepartmentName     string `json:"department_name"`
	Description        string `json:"description,omitempty"`
	AverageServiceTime *int   `json:"average_service_time,omitempty"`
	MaxQueueSize       *int   `json:"max_queue_size,omitempty"`
	IsActive           bool   `json:"is_active"`
}

type Doctor struct {
	DoctorID       int64  `json:"doctor_id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Specialization string `json:"specialization,omitempty"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	Email          string `json:"email,omitempty"`
	DepartmentID   *int64 `json:"department_id,omitempty"`
	IsAvailable    bool   `json:"is_available"`
	IsActive       bool   `json:"is_active"`
}

func (d Doctor) DisplayName() string {
	return "Dr. " + d.FirstName + " " + d.LastName
}
