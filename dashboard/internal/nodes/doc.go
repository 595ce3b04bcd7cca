// Package nodes follows the Hop server's node registry.
package nodes
