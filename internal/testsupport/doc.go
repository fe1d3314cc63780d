// Package testsupport provides fixtures shared by package tests: temp-dir
// configs, record and sink store constructors with registered cleanup, and
// document fixtures.
package testsupport
