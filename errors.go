package hgalloc

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ElementTooSmallError is the error returned when creating a pool whose element type is too small to
// hold the intrusive free-list link
var ElementTooSmallError error = errors.New("element type must be at least four bytes")

// ElementAlignmentError is the error returned when creating a pool whose element type is not aligned
// strictly enough for the intrusive free-list link
var ElementAlignmentError error = errors.New("element type must be at least four-byte aligned")
