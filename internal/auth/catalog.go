package auth

// Permission codes form a closed catalog: grantPermission refuses anything
// outside this enumeration.
const (
	PermTripsCreate     = "trips.create"
	PermTripsRead       = "trips.read"
	PermTripsTransition = "trips.transition"

	PermVehiclesRead   = "vehicles.read"
	PermVehiclesAssign = "vehicles.assign"

	PermDocumentsRead  = "documents.read"
	PermDocumentsWrite = "documents.write"

	PermEscrowPost       = "escrow.post"
	PermSettlementsIssue = "settlements.issue"

	PermManageUsers       = "rbac.users.manage"
	PermManageRoles       = "rbac.roles.manage"
	PermManagePermissions = "rbac.permissions.manage"
)

// Builtin role codes.
const (
	RoleDriver     = "driver"
	RoleDispatcher = "dispatcher"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
)

// BuiltinPermissions is the full permission catalog, seeded at startup.
var BuiltinPermissions = []Permission{
	{Code: PermTripsCreate, Name: "Create trips"},
	{Code: PermTripsRead, Name: "Read trips"},
	{Code: PermTripsTransition, Name: "Advance trip lifecycle"},
	{Code: PermVehiclesRead, Name: "Read vehicles"},
	{Code: PermVehiclesAssign, Name: "Assign vehicles to drivers"},
	{Code: PermDocumentsRead, Name: "Read documents"},
	{Code: PermDocumentsWrite, Name: "Record document versions"},
	{Code: PermEscrowPost, Name: "Post escrow transactions"},
	{Code: PermSettlementsIssue, Name: "Issue settlements"},
	{Code: PermManageUsers, Name: "Manage user accounts"},
	{Code: PermManageRoles, Name: "Manage roles"},
	{Code: PermManagePermissions, Name: "Manage role permissions"},
}

// BuiltinRoles are seeded at startup together with their default grants.
var BuiltinRoles = []Role{
	{Code: RoleDriver, Name: "Driver"},
	{Code: RoleDispatcher, Name: "Dispatcher"},
	{Code: RoleManager, Name: "Manager"},
	{Code: RoleAdmin, Name: "Administrator"},
}

// BuiltinGrants maps builtin role codes to their default permission codes.
var BuiltinGrants = map[string][]string{
	RoleDriver: {PermTripsRead, PermDocumentsRead},
	RoleDispatcher: {
		PermTripsRead, PermTripsCreate, PermTripsTransition,
		PermVehiclesRead, PermVehiclesAssign, PermDocumentsRead,
	},
	RoleManager: {
		PermTripsRead, PermTripsCreate, PermTripsTransition,
		PermVehiclesRead, PermVehiclesAssign,
		PermDocumentsRead, PermDocumentsWrite,
		PermEscrowPost, PermSettlementsIssue,
	},
	RoleAdmin: {
		PermTripsRead, PermTripsCreate, PermTripsTransition,
		PermVehiclesRead, PermVehiclesAssign,
		PermDocumentsRead, PermDocumentsWrite,
		PermEscrowPost, PermSettlementsIssue,
		PermManageUsers, PermManageRoles, PermManagePermissions,
	},
}

var catalogSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(BuiltinPermissions))
	for _, p := range BuiltinPermissions {
		set[p.Code] = struct{}{}
	}
	return set
}()

// InCatalog reports whether code belongs to the closed permission catalog.
func InCatalog(code string) bool {
	_, ok := catalogSet[code]
	return ok
}
