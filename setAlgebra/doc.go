// Package setAlgebra provides the set operations between the frames of several captures.
//
// From keying every frame of every capture by its canonical content,
// over building one hash map of keys per capture,
// to computing unions, intersections, differences and their time bounded variants.
package setAlgebra
