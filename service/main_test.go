package service

import (
	"os"
	"testing"

	"github.com/pankajk/Wound-Care/utils"
)

func TestMain(m *testing.M) {
	if err := utils.InitLogger("release"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
