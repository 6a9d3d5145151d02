// Command squatcoach analyses squats from a camera or a video file.
package main

func main() {
	Execute()
}
