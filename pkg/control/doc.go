// Package control defines the controller transport capability: reporting
// local node state upstream and receiving desired configuration pushes.
package control
