package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/alexedwards/argon2id"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/salon-pos/internal/common"
)

var (
	// ErrCustomerNotFound is returned for unknown customer ids.
	ErrCustomerNotFound = fmt.Errorf("customer not found: %w", common.ErrNotFound)
	// ErrStaffNotFound is returned for unknown staff ids.
	ErrStaffNotFound = fmt.Errorf("staff member not found: %w", common.ErrNotFound)
	// ErrInvalidCredentials is returned when a staff login does not verify.
	ErrInvalidCredentials = errors.New("invalid staff id or password")
)

// PrivilegeLevel decides what a staff member may do at the till.
type PrivilegeLevel string

const (
	PrivilegeStaff   PrivilegeLevel = "staff"
	PrivilegeManager PrivilegeLevel = "manager"
)

// Customer is a salon client.
type Customer struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Phone string `yaml:"phone" json:"phone,omitempty"`
	Email string `yaml:"email" json:"email,omitempty"`
}

// StaffMember is a therapist or stylist who can perform services and log in.
type StaffMember struct {
	ID             string         `yaml:"id" json:"id"`
	Name           string         `yaml:"name" json:"name"`
	Title          string         `yaml:"title" json:"title,omitempty"`
	PrivilegeLevel PrivilegeLevel `yaml:"privilegeLevel" json:"privilegeLevel"`
	PasswordHash   string         `yaml:"passwordHash" json:"-"`
}

// CanReassignStaff reports whether the member may assign services to others.
func (s StaffMember) CanReassignStaff() bool {
	return s.PrivilegeLevel == PrivilegeManager
}

type seed struct {
	Customers []Customer    `yaml:"customers"`
	Staff     []StaffMember `yaml:"staff"`
}

// Directory is an immutable view of customers and staff.
type Directory struct {
	customers []Customer
	staff     []StaffMember
	custByID  map[string]int
	staffByID map[string]int
}

// Load reads a YAML seed file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	return Parse(data)
}

// Parse builds a directory from YAML. Ids must be unique per kind and every
// staff member needs a known privilege level.
func Parse(data []byte) (*Directory, error) {
	var s seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse directory: %w", err)
	}
	return New(s.Customers, s.Staff)
}

// New builds a directory from in-memory records.
func New(customers []Customer, staff []StaffMember) (*Directory, error) {
	d := &Directory{
		customers: make([]Customer, 0, len(customers)),
		staff:     make([]StaffMember, 0, len(staff)),
		custByID:  make(map[string]int, len(customers)),
		staffByID: make(map[string]int, len(staff)),
	}
	for _, c := range customers {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" || strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("customer %q: id and name required", c.ID)
		}
		if _, dup := d.custByID[c.ID]; dup {
			return nil, fmt.Errorf("customer %q: duplicate id", c.ID)
		}
		d.custByID[c.ID] = len(d.customers)
		d.customers = append(d.customers, c)
	}
	for _, m := range staff {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" || strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("staff %q: id and name required", m.ID)
		}
		if _, dup := d.staffByID[m.ID]; dup {
			return nil, fmt.Errorf("staff %q: duplicate id", m.ID)
		}
		switch m.PrivilegeLevel {
		case "":
			m.PrivilegeLevel = PrivilegeStaff
		case PrivilegeStaff, PrivilegeManager:
		default:
			return nil, fmt.Errorf("staff %q: unknown privilege level %q", m.ID, m.PrivilegeLevel)
		}
		d.staffByID[m.ID] = len(d.staff)
		d.staff = append(d.staff, m)
	}
	return d, nil
}

// Customers lists customers sorted by name.
func (d *Directory) Customers() []Customer {
	out := append([]Customer(nil), d.customers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Customer looks up one customer.
func (d *Directory) Customer(_ context.Context, id string) (Customer, error) {
	i, ok := d.custByID[strings.TrimSpace(id)]
	if !ok {
		return Customer{}, fmt.Errorf("%s: %w", id, ErrCustomerNotFound)
	}
	return d.customers[i], nil
}

// SearchCustomers returns customers whose name, phone or email contains q,
// ignoring case.
func (d *Directory) SearchCustomers(q string) []Customer {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return d.Customers()
	}
	var out []Customer
	for _, c := range d.Customers() {
		if strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Phone), q) ||
			strings.Contains(strings.ToLower(c.Email), q) {
			out = append(out, c)
		}
	}
	return out
}

// Staff lists staff in seed order.
func (d *Directory) Staff() []StaffMember {
	return append([]StaffMember(nil), d.staff...)
}

// StaffMember looks up one staff member.
func (d *Directory) StaffMember(_ context.Context, id string) (StaffMember, error) {
	i, ok := d.staffByID[strings.TrimSpace(id)]
	if !ok {
		return StaffMember{}, fmt.Errorf("%s: %w", id, ErrStaffNotFound)
	}
	return d.staff[i], nil
}

// Authenticate verifies a staff password against its argon2id hash. Members
// without a hash cannot log in.
func (d *Directory) Authenticate(ctx context.Context, id, password string) (StaffMember, error) {
	m, err := d.StaffMember(ctx, id)
	if err != nil || m.PasswordHash == "" || password == "" {
		return StaffMember{}, ErrInvalidCredentials
	}
	ok, err := argon2id.ComparePasswordAndHash(password, m.PasswordHash)
	if err != nil || !ok {
		return StaffMember{}, ErrInvalidCredentials
	}
	return m, nil
}
