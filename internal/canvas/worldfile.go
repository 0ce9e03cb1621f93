package canvas

import (
	"fmt"
	"os"
	"strings"
)

// WriteWorldFile writes a georeferencing world file next to outputPath:
// six lines of pixel size / rotation / origin. It is an optional companion
// output for the Custom/Generic template dezoomer, whose XYZ tile URLs
// resemble slippy-map tiles.
func WriteWorldFile(outputPath string, pixelSizeX, pixelSizeY, originX, originY float64) error {
	if outputPath == "" {
		return fmt.Errorf("can't write a world file when writing to stdout")
	}
	ext := ".pgw"
	if strings.HasSuffix(strings.ToLower(outputPath), ".jpg") || strings.HasSuffix(strings.ToLower(outputPath), ".jpeg") {
		ext = ".jgw"
	}

	worldPath := outputPath
	if idx := strings.LastIndex(worldPath, "."); idx != -1 {
		worldPath = worldPath[:idx] + ext
	} else {
		worldPath += ext
	}

	f, err := os.Create(worldPath)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "%24.10f\n", pixelSizeX)
	fmt.Fprintf(f, "%24.10f\n", 0.0)
	fmt.Fprintf(f, "%24.10f\n", 0.0)
	fmt.Fprintf(f, "%24.10f\n", -pixelSizeY)
	fmt.Fprintf(f, "%24.10f\n", originX)
	fmt.Fprintf(f, "%24.10f\n", originY)
	return nil
}
