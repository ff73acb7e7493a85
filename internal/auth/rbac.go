package auth

type Role string

const (
	RoleSuperAdmin      Role = "SUPER_ADMIN"
	RoleRestaurantAdmin Role = "RESTAURANT_ADMIN"
	RoleStaff           Role = "STAFF"
	RoleKitchen         Role = "KITCHEN"
	RoleServer          Role = "SERVER"
)

type Permission string

const (
	PermViewTables      Permission = "tables:view"
	PermManageTables    Permission = "tables:manage"
	PermReleaseAnyTable Permission = "tables:release-any"
	PermReviewOrders    Permission = "orders:review"
	PermClaimOrders     Permission = "orders:claim"
	PermUpdateOrders    Permission = "orders:update"
	PermProcessPayments Permission = "payments:process"
	PermViewBilling     Permission = "billing:view"
	PermViewStats       Permission = "stats:view"
)

var staffPermissions = []Permission{
	PermViewTables,
	PermManageTables,
	PermReviewOrders,
	PermClaimOrders,
	PermUpdateOrders,
	PermProcessPayments,
	PermViewBilling,
	PermViewStats,
}

// capabilities is the single source of truth for what each role may do.
var capabilities = map[Role]map[Permission]bool{
	RoleSuperAdmin:      set(append(staffPermissions, PermReleaseAnyTable)...),
	RoleRestaurantAdmin: set(append(staffPermissions, PermReleaseAnyTable)...),
	RoleStaff:           set(staffPermissions...),
	RoleServer:          set(staffPermissions...),
	RoleKitchen:         set(staffPermissions...),
}

func set(perms ...Permission) map[Permission]bool {
	m := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		m[p] = true
	}
	return m
}

func (r Role) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

// Caller is the authenticated identity behind a staff request.
type Caller struct {
	UserID       string `json:"userId"`
	RestaurantID string `json:"restaurantId"`
	Role         Role   `json:"role"`
}

func (c Caller) Can(p Permission) bool {
	return capabilities[c.Role][p]
}

// OwnsRestaurant reports whether the caller may see data of the given tenant.
func (c Caller) OwnsRestaurant(restaurantID string) bool {
	if c.Role == RoleSuperAdmin {
		return true
	}
	return c.RestaurantID != "" && c.RestaurantID == restaurantID
}
