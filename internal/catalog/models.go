package catalog

import "net/url"

// Field names follow the backend's OData DTOs. Dates are kept as the backend
// formats them. The *Label fields are never sent by the backend; they are
// filled in after a page is fetched.

// Category is a row of /odata/categoryOData
type Category struct {
	CategoryID  int    `json:"CategoryId"`
	FullName    string `json:"FullName"`
	Description string `json:"Description"`
}

// User is a row of /odata/userOData
type User struct {
	ID               string  `json:"Id"`
	Email            string  `json:"Email"`
	FirstName        string  `json:"FirstName"`
	LastName         *string `json:"LastName"`
	ProfileImagePath *string `json:"ProfileImagePath"`
	Address          *string `json:"Address"`
	Dob              *string `json:"Dob"`
	Role             *string `json:"Role"`
	RoleLabel        string  `json:"RoleLabel,omitempty"`
}

// Course is a row of /odata/courseodata
type Course struct {
	CourseID         int          `json:"CourseId"`
	Title            string       `json:"Title"`
	CourseCode       string       `json:"CourseCode"`
	Description      string       `json:"Description"`
	CoverImagePath   string       `json:"CoverImagePath"`
	InstructorID     string       `json:"InstructorId"`
	InstructorName   string       `json:"InstructorName"`
	NumberOfStudents int          `json:"NumberOfStudents"`
	Price            float64      `json:"Price"`
	CategoryID       int          `json:"CategoryId"`
	CategoryName     string       `json:"CategoryName"`
	Level            CourseLevel  `json:"Level"`
	Status           CourseStatus `json:"Status"`
	IsBaned          bool         `json:"IsBaned"`
	CreateDate       string       `json:"CreateDate"`
	LastUpdate       string       `json:"LastUpdate"`
	EndDate          *string      `json:"EndDate"`
	Rating           float64      `json:"Rating"`
	NumberOfRate     int          `json:"NumberOfRate"`
	LevelLabel       string       `json:"LevelLabel,omitempty"`
	StatusLabel      string       `json:"StatusLabel,omitempty"`
}

// InstructorConfirmation is a row of /odata/instructorconfirmationodata
type InstructorConfirmation struct {
	ConfirmationID  int    `json:"ConfirmationId"`
	UserName        string `json:"UserName"`
	FileName        string `json:"FileName"`
	CertificateLink string `json:"Certificatelink"`
	SendDate        string `json:"SendDate"`
	Description     string `json:"Description"`
	CertificateURL  string `json:"CertificateUrl,omitempty"`
}

// DecodedCertificateLink percent-decodes the stored link. A link that does not
// decode is returned unchanged.
func (c InstructorConfirmation) DecodedCertificateLink() string {
	decoded, err := url.PathUnescape(c.CertificateLink)
	if err != nil {
		return c.CertificateLink
	}
	return decoded
}

// Payment is a row of /odata/paymentodata
type Payment struct {
	PaymentID            int           `json:"PaymentId"`
	CourseID             int           `json:"CourseId"`
	StudentID            string        `json:"StudentId"`
	Amount               float64       `json:"Amount"`
	PaymentDate          string        `json:"PaymentDate"`
	Status               PaymentStatus `json:"Status"`
	OrderCode            int64         `json:"OrderCode"`
	GatewayTransactionID *string       `json:"GatewayTransactionId"`
	CheckoutURL          *string       `json:"CheckoutUrl"`
	Description          *string       `json:"Description"`
	StudentName          string        `json:"StudentName"`
	CourseName           string        `json:"CourseName"`
	StatusLabel          string        `json:"StatusLabel,omitempty"`
}

// UpdateCategoryRequest is the body of PUT /category/{id}
type UpdateCategoryRequest struct {
	FullName    string `json:"fullName"`
	Description string `json:"description"`
}

// ApproveConfirmationRequest is the body of the approve call
type ApproveConfirmationRequest struct {
	ConfirmationID int `json:"ConfirmationId"`
}

// ApproveConfirmationResponse is what the backend answers to an approval
type ApproveConfirmationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
