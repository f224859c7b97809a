//go:build !race

package podauth

func passwordHashCost() int {
	return 12
}
