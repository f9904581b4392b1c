package domain

type Role string

const (
	// Seller shares products through magic links.
	RoleSeller Role = "seller"
	// Buyer opens magic links and purchases.
	RoleBuyer Role = "buyer"
)

func IsValidRole(r string) bool {
	return r == string(RoleSeller) || r == string(RoleBuyer)
}
