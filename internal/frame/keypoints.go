package frame

// KeypointNames lists the 17 COCO body landmarks in model output order.
var KeypointNames = []string{
	"nose",
	"left_eye",
	"right_eye",
	"left_ear",
	"right_ear",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
}

// Skeleton lists the keypoint pairs joined by a limb when drawing a pose.
var Skeleton = [][2]string{
	{"left_ankle", "left_knee"},
	{"left_knee", "left_hip"},
	{"right_ankle", "right_knee"},
	{"right_knee", "right_hip"},
	{"left_hip", "right_hip"},
	{"left_shoulder", "left_hip"},
	{"right_shoulder", "right_hip"},
	{"left_shoulder", "right_shoulder"},
	{"left_shoulder", "left_elbow"},
	{"right_shoulder", "right_elbow"},
	{"left_elbow", "left_wrist"},
	{"right_elbow", "right_wrist"},
	{"left_eye", "right_eye"},
	{"nose", "left_eye"},
	{"nose", "right_eye"},
	{"left_eye", "left_ear"},
	{"right_eye", "right_ear"},
}

// IsKeypointName reports whether name is one of KeypointNames.
func IsKeypointName(name string) bool {
	for _, n := range KeypointNames {
		if n == name {
			return true
		}
	}
	return false
}
