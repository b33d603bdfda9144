package document

type textStyle struct {
	x, y    float64
	size    float64
	r, g, b int
}

var (
	black = [3]int{0, 0, 0}
	red   = [3]int{255, 0, 0}
)

func styled(x float64, y float64, size float64, color [3]int) textStyle {
	return textStyle{x: x, y: y, size: size, r: color[0], g: color[1], b: color[2]}
}

// Main permit, page 1.
var (
	mainFolio       = styled(665, 282, 18, red)
	mainPlate       = styled(200, 200, 60, black)
	mainIssueDate   = styled(200, 340, 14, black)
	mainValidity    = styled(600, 340, 14, black)
	mainBrand       = styled(110, 425, 14, black)
	mainSerial      = styled(460, 420, 14, black)
	mainModel       = styled(110, 455, 14, black)
	mainEngine      = styled(460, 445, 14, black)
	mainYear        = styled(110, 485, 14, black)
	mainColor       = styled(460, 395, 14, black)
	mainVehicleType = styled(510, 470, 14, black)
	mainHolderName  = styled(150, 370, 14, black)
)

// Main permit, page 2.
var (
	secondPageValidity = styled(126, 310, 15, black)
	qrX, qrY, qrSide   = 665.0, 282.0, 70.87
)

// Receipt.
var (
	receiptHolderName = styled(155, 245, 18, black)
	receiptFolio      = styled(1045, 205, 20, black)
	receiptDate       = styled(1045, 275, 20, black)
	receiptTime       = styled(1045, 348, 20, black)
)
