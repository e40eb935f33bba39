// Package exposure decides and executes what happens when a port becomes
// exposed and served.
package exposure
