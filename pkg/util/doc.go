// Package util provides small generic helpers shared by the worker packages
package util
